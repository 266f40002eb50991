// Package cdefine registers components declared in HTML templates and runs
// their lifecycle on the server, rendering each instance as declarative
// shadow DOM.
//
// A component is a <template> bound to a name. Templates may extend other
// templates, merging their content, attributes and behaviors in declared
// order. Script blocks inside a template become behavior units that run for
// every instance when it is attached.
//
// # Declaring Components
//
// Components are declared in markup with c-define:
//
//	<c-define name="greet-card" extend="base-card">
//	  <template observe:name>
//	    <p>hi</p>
//	    <script>count = 1</script>
//	  </template>
//	</c-define>
//
// DefineDocument defines every c-define element of a document. The
// definitions run concurrently, so a component may extend one declared later
// in the document; the extending definition waits until its target is
// defined. An extend cycle fails with ErrCycle rather than waiting forever.
//
// Define registers an already compiled template under a name, for
// components assembled in Go:
//
//	compiled, err := reg.Compiler().Compile(ctx, tmpl)
//	def, err := reg.Define("greet-card", compiled, cdefine.DefineOptions{})
//
// # Compilation
//
// The Compiler caches by template identity. A template is scanned for
// scripts once; compiling it again returns the same *Compiled. Scripts with
// a src attribute or a non-script type (for example application/json) stay
// in the content. Scripts without a type or with type text/javascript become
// synchronous units; type module scripts become asynchronous units whose
// completion gates the rest of the queue.
//
// Attributes on the template element are snapshotted. An attribute named
// observe:<attr> makes <attr> an observed attribute of the component.
//
// # Behaviors
//
// A script body that names a behavior registered with Registry.Behavior
// runs that Go function:
//
//	reg.Behavior("track-clicks", func(ctx context.Context, self *cdefine.Instance) error {
//	    self.State().Set("clicks", 0)
//	    return nil
//	})
//
// Any other body is a sandboxed HCL script that can only read the instance
// (self.id, self.name, self.attrs, self.state, self.shared), assign state and
// emit events. See CompileHCL.
//
// # Instances
//
// Definition.New creates an unattached instance. Connect registers it in the
// instance registry, renders the template content into its root exactly
// once, runs the behaviors in order and raises connected. Disconnect
// unregisters it; Adopt registers it again under the same id. Changes to
// observed attributes raise attributeChanged.
//
// # Serving Instances
//
// Registry.Handler serves GET /_c/<name> (Options.Path changes the
// prefix). Query parameters become
// attributes; the s parameter carries per-instance state sealed with the
// registry key (signed, or encrypted with Options.Sensitive). The response
// carries the resealed state in X-Cdefine-State and the events raised
// while connecting in HX-Trigger:
//
//	mux.Handle(reg.Path(), reg.Handler())
//
// # Errors
//
// Definition and compilation failures are *Error values carrying a Kind.
// Use IsConfiguration, IsDuplicate and IsNotFound to classify them. A
// failed compile never leaves a partial result in the cache.
package cdefine
