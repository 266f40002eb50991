package dom

import (
	"errors"
	"testing"

	"github.com/andybalholm/cascadia"
)

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate(`<template id="card" observe:name><p>hi</p><span>x</span></template>`)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}
	if !IsElement(tmpl, "template") {
		t.Fatalf("ParseTemplate() returned %q", tmpl.Data)
	}
	if id, _ := Attr(tmpl, "id"); id != "card" {
		t.Errorf("id = %q, want %q", id, "card")
	}
	if _, ok := Attr(tmpl, "observe:name"); !ok {
		t.Error("observe:name attribute missing")
	}
	if got := len(Children(tmpl)); got != 2 {
		t.Errorf("len(Children) = %d, want 2", got)
	}
}

func TestParseTemplate_NoTemplate(t *testing.T) {
	_, err := ParseTemplate(`<p>no template here</p>`)
	if !errors.Is(err, ErrNoTemplate) {
		t.Errorf("ParseTemplate() error = %v, want ErrNoTemplate", err)
	}
}

func TestClone_Independent(t *testing.T) {
	tmpl, err := ParseTemplate(`<template><p class="a">hi</p></template>`)
	if err != nil {
		t.Fatal(err)
	}
	orig := tmpl.FirstChild
	c := Clone(orig)

	c.Attr[0].Val = "b"
	c.FirstChild.Data = "bye"

	if v, _ := Attr(orig, "class"); v != "a" {
		t.Errorf("original class = %q, want %q", v, "a")
	}
	if got := TextContent(orig); got != "hi" {
		t.Errorf("original text = %q, want %q", got, "hi")
	}
	if c.Parent != nil {
		t.Error("clone should be detached")
	}
}

func TestContentOf(t *testing.T) {
	tmpl, err := ParseTemplate(`<template><p>hi</p><span>x</span></template>`)
	if err != nil {
		t.Fatal(err)
	}
	before := String(tmpl)

	f := ContentOf(tmpl)
	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}
	if got, want := f.String(), "<p>hi</p><span>x</span>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	f.Remove(f.Nodes()[0])
	if got := String(tmpl); got != before {
		t.Errorf("template changed to %q", got)
	}
}

func TestFragment_QueryAllIncludesTopLevel(t *testing.T) {
	f, err := ParseFragment(`<script>a</script><div><script>b</script></div>`)
	if err != nil {
		t.Fatal(err)
	}
	got := f.QueryAll(cascadia.MustCompile("script"))
	if len(got) != 2 {
		t.Fatalf("QueryAll() found %d nodes, want 2", len(got))
	}
	if TextContent(got[0]) != "a" || TextContent(got[1]) != "b" {
		t.Errorf("QueryAll() order = %q, %q", TextContent(got[0]), TextContent(got[1]))
	}
}

func TestFragment_QuerySkipsNestedTemplates(t *testing.T) {
	f, err := ParseFragment(`<template id="inner"><script>x</script><b class="y">in</b></template><div><script>y</script></div>`)
	if err != nil {
		t.Fatal(err)
	}

	got := f.QueryAll(cascadia.MustCompile("script"))
	if len(got) != 1 || TextContent(got[0]) != "y" {
		t.Errorf("QueryAll(script) = %d nodes, want only the outer script", len(got))
	}
	if got := f.QueryAll(cascadia.MustCompile("template")); len(got) != 1 {
		t.Errorf("QueryAll(template) = %d nodes, want 1", len(got))
	}
	if n, err := f.Query(".y"); err != nil || n != nil {
		t.Errorf("Query(.y) = %v, %v; want nil", n, err)
	}
}

func TestFragment_Remove(t *testing.T) {
	f, err := ParseFragment(`<p>one</p><div><script>x</script><i>two</i></div>`)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range f.QueryAll(cascadia.MustCompile("script")) {
		f.Remove(n)
	}
	f.Remove(f.Nodes()[0])

	if got, want := f.String(), "<div><i>two</i></div>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFragment_AppendMoves(t *testing.T) {
	a, _ := ParseFragment(`<p>a</p>`)
	b, _ := ParseFragment(`<p>b</p>`)
	a.Append(b)

	if a.Len() != 2 || b.Len() != 0 {
		t.Errorf("after Append: a.Len() = %d, b.Len() = %d", a.Len(), b.Len())
	}
	if got, want := a.String(), "<p>a</p><p>b</p>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFragment_Query(t *testing.T) {
	f, _ := ParseFragment(`<p id="x">a</p><div><b class="y">b</b></div>`)

	n, err := f.Query("#x")
	if err != nil || n == nil || n.Data != "p" {
		t.Errorf("Query(#x) = %v, %v", n, err)
	}
	n, err = f.Query(".y")
	if err != nil || n == nil || n.Data != "b" {
		t.Errorf("Query(.y) = %v, %v", n, err)
	}
	n, err = f.Query(".missing")
	if err != nil || n != nil {
		t.Errorf("Query(.missing) = %v, %v", n, err)
	}
	if _, err := f.Query("[["); err == nil {
		t.Error("Query with invalid selector should fail")
	}
}

func TestRoot_AppendOnce(t *testing.T) {
	r := NewRoot()
	if r.Appended() {
		t.Fatal("new root should be empty")
	}

	first, _ := ParseFragment(`<p>hi</p>`)
	if !r.AppendOnce(first) {
		t.Fatal("first AppendOnce should succeed")
	}
	size := r.Size()

	second, _ := ParseFragment(`<p>again</p>`)
	if r.AppendOnce(second) {
		t.Error("second AppendOnce should be refused")
	}
	if r.Size() != size {
		t.Errorf("Size() = %d after refused append, want %d", r.Size(), size)
	}
	if got, want := r.String(), "<p>hi</p>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	c := r.Content()
	c.Remove(c.Nodes()[0])
	if r.Size() != size {
		t.Error("Content() should return a copy")
	}
}

func TestQueryAll_Document(t *testing.T) {
	doc, err := ParseString(`<html><body><template id="a"></template><div><template id="b"></template></div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	got, err := QueryAll(doc, "template")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("QueryAll() = %d nodes, want 2", len(got))
	}
	n, err := Query(doc, "#b")
	if err != nil || n == nil {
		t.Fatalf("Query(#b) = %v, %v", n, err)
	}
	if Count(n) != 1 {
		t.Errorf("Count() = %d, want 1", Count(n))
	}
}
