package cdefine

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// scriptFunctions is the whole function surface available to template
// scripts. Nothing in it reaches outside the instance.
var scriptFunctions = map[string]function.Function{
	"can":       tryfunc.CanFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"concat":    stdlib.ConcatFunc,
	"format":    stdlib.FormatFunc,
	"join":      stdlib.JoinFunc,
	"length":    stdlib.LengthFunc,
	"lower":     stdlib.LowerFunc,
	"max":       stdlib.MaxFunc,
	"min":       stdlib.MinFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"try":       tryfunc.TryFunc,
	"upper":     stdlib.UpperFunc,
}

// statement is a top-level attribute or block of a script, kept in source
// order.
type statement struct {
	pos   int
	attr  *hclsyntax.Attribute
	block *hclsyntax.Block
}

// CompileHCL compiles a script body written in HCL native syntax.
//
// Top-level attributes assign per-instance state, in source order, each
// one seeing the assignments before it:
//
//	count = try(self.state.count, 0) + 1
//	label = upper(self.attrs.name)
//
// A shared block assigns the state bag shared by every instance of the
// definition, and an emit block dispatches a notification:
//
//	shared {
//	  seen = try(self.shared.seen, 0) + 1
//	}
//	emit "greeted" {
//	  who = self.attrs.name
//	}
//
// Expressions can read self.id, self.name, self.state, self.shared and
// self.attrs. The body is parsed once here; only evaluation happens per
// invocation.
func CompileHCL(ref ScriptRef) (Behavior, error) {
	file, diags := hclsyntax.ParseConfig([]byte(ref.Body), ref.Filename(), hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidScript, diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected body type %T", ErrInvalidScript, ref.Filename(), file.Body)
	}

	stmts := make([]statement, 0, len(body.Attributes)+len(body.Blocks))
	for _, attr := range body.Attributes {
		stmts = append(stmts, statement{pos: attr.SrcRange.Start.Byte, attr: attr})
	}
	for _, block := range body.Blocks {
		if err := checkBlock(ref, block); err != nil {
			return nil, err
		}
		stmts = append(stmts, statement{pos: block.TypeRange.Start.Byte, block: block})
	}
	slices.SortFunc(stmts, func(a, b statement) int { return a.pos - b.pos })

	return func(ctx context.Context, self *Instance) error {
		for _, st := range stmts {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			switch {
			case st.attr != nil:
				err = assign(self, st.attr, self.State())
			case st.block.Type == "shared":
				for _, attr := range sortedAttributes(st.block.Body) {
					if err = assign(self, attr, self.Shared()); err != nil {
						break
					}
				}
			case st.block.Type == "emit":
				err = emit(self, st.block)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func checkBlock(ref ScriptRef, block *hclsyntax.Block) error {
	var want int
	switch block.Type {
	case "shared":
		want = 0
	case "emit":
		want = 1
	default:
		return fmt.Errorf("%w: %s:%d: unsupported block %q", ErrInvalidScript, ref.Filename(), block.TypeRange.Start.Line, block.Type)
	}
	if len(block.Labels) != want {
		return fmt.Errorf("%w: %s:%d: block %q takes %d label(s)", ErrInvalidScript, ref.Filename(), block.TypeRange.Start.Line, block.Type, want)
	}
	if len(block.Body.Blocks) > 0 {
		return fmt.Errorf("%w: %s:%d: block %q cannot nest blocks", ErrInvalidScript, ref.Filename(), block.TypeRange.Start.Line, block.Type)
	}
	return nil
}

func sortedAttributes(body *hclsyntax.Body) []*hclsyntax.Attribute {
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	slices.SortFunc(attrs, func(a, b *hclsyntax.Attribute) int {
		return a.SrcRange.Start.Byte - b.SrcRange.Start.Byte
	})
	return attrs
}

func assign(self *Instance, attr *hclsyntax.Attribute, into *State) error {
	v, err := evaluate(self, attr.Expr)
	if err != nil {
		return err
	}
	into.Set(attr.Name, v)
	return nil
}

func emit(self *Instance, block *hclsyntax.Block) error {
	detail := make(map[string]any, len(block.Body.Attributes))
	for _, attr := range sortedAttributes(block.Body) {
		v, err := evaluate(self, attr.Expr)
		if err != nil {
			return err
		}
		detail[attr.Name] = v
	}
	self.Dispatch(block.Labels[0], detail)
	return nil
}

func evaluate(self *Instance, expr hclsyntax.Expression) (any, error) {
	val, diags := expr.Value(scriptContext(self))
	if diags.HasErrors() {
		return nil, diags
	}
	return fromCty(val)
}

func scriptContext(self *Instance) *hcl.EvalContext {
	attrs := make(map[string]cty.Value)
	for _, a := range self.Attributes() {
		attrs[a.Key] = cty.StringVal(a.Val)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"self": cty.ObjectVal(map[string]cty.Value{
				"id":     cty.StringVal(self.ID()),
				"name":   cty.StringVal(self.Name()),
				"state":  objectVal(self.State().Snapshot()),
				"shared": objectVal(self.Shared().Snapshot()),
				"attrs":  cty.ObjectVal(attrs),
			}),
		},
		Functions: scriptFunctions,
	}
}

func objectVal(m map[string]any) cty.Value {
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = toCty(v)
	}
	return cty.ObjectVal(vals)
}

// toCty converts a Go value held in a State into a cty.Value.
func toCty(v any) cty.Value {
	switch v := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case cty.Value:
		return v
	case string:
		return cty.StringVal(v)
	case bool:
		return cty.BoolVal(v)
	case int:
		return cty.NumberIntVal(int64(v))
	case int8:
		return cty.NumberIntVal(int64(v))
	case int16:
		return cty.NumberIntVal(int64(v))
	case int32:
		return cty.NumberIntVal(int64(v))
	case int64:
		return cty.NumberIntVal(v)
	case uint:
		return cty.NumberUIntVal(uint64(v))
	case uint8:
		return cty.NumberUIntVal(uint64(v))
	case uint16:
		return cty.NumberUIntVal(uint64(v))
	case uint32:
		return cty.NumberUIntVal(uint64(v))
	case uint64:
		return cty.NumberUIntVal(v)
	case float32:
		return cty.NumberFloatVal(float64(v))
	case float64:
		return cty.NumberFloatVal(v)
	case []string:
		if len(v) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(v))
		for i, s := range v {
			vals[i] = cty.StringVal(s)
		}
		return cty.TupleVal(vals)
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(v))
		for i, e := range v {
			vals[i] = toCty(e)
		}
		return cty.TupleVal(vals)
	case map[string]any:
		return objectVal(v)
	default:
		return cty.StringVal(fmt.Sprint(v))
	}
}

// fromCty converts an evaluated cty.Value into plain Go values. Whole
// numbers become int, other numbers float64.
func fromCty(val cty.Value) (any, error) {
	val, _ = val.Unmark()
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Bool:
			return val.True(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if bf.IsInt() {
				if i, acc := bf.Int64(); acc == big.Exact {
					return int(i), nil
				}
			}
			f, _ := bf.Float64()
			return f, nil
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			e, err := fromCty(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = e
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			e, err := fromCty(v)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cdefine: unsupported script value of type %s", ty.FriendlyName())
}
