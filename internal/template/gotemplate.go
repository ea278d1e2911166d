package template

import (
	"bytes"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/Masterminds/sprig/v3"
)

// GoTemplateRenderer renders text/template content with the sprig function
// map. Missing map keys are errors rather than "<no value>".
type GoTemplateRenderer struct {
	funcs template.FuncMap
}

// NewGoTemplateRenderer creates a renderer. The sprig functions that read the
// process environment are removed so output depends only on the context.
func NewGoTemplateRenderer() *GoTemplateRenderer {
	funcs := sprig.TxtFuncMap()
	delete(funcs, "env")
	delete(funcs, "expandenv")
	return &GoTemplateRenderer{funcs: funcs}
}

func (r *GoTemplateRenderer) Name() string { return "gotemplate" }

func (r *GoTemplateRenderer) parse(name, content string) (*template.Template, error) {
	return template.New(name).Funcs(r.funcs).Option("missingkey=error").Parse(content)
}

// Variables walks the parse tree and returns every field path evaluated
// against the root context. Fields inside range and with bodies are relative
// to a different dot and are skipped unless written as $.path.
func (r *GoTemplateRenderer) Variables(content string) ([]string, error) {
	tmpl, err := r.parse("variables", content)
	if err != nil {
		return nil, err
	}
	found := map[string]bool{}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			walkNode(t.Tree.Root, false, found)
		}
	}
	out := make([]string, 0, len(found))
	for v := range found {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (r *GoTemplateRenderer) Render(name, content string, context map[string]interface{}) (string, error) {
	tmpl, err := r.parse(name, content)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func walkNode(node parse.Node, scoped bool, found map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walkNode(c, scoped, found)
		}
	case *parse.ActionNode:
		walkPipe(n.Pipe, scoped, found)
	case *parse.IfNode:
		walkPipe(n.Pipe, scoped, found)
		walkNode(n.List, scoped, found)
		walkNode(n.ElseList, scoped, found)
	case *parse.RangeNode:
		walkPipe(n.Pipe, scoped, found)
		walkNode(n.List, true, found)
		walkNode(n.ElseList, scoped, found)
	case *parse.WithNode:
		walkPipe(n.Pipe, scoped, found)
		walkNode(n.List, true, found)
		walkNode(n.ElseList, scoped, found)
	case *parse.TemplateNode:
		walkPipe(n.Pipe, scoped, found)
	}
}

func walkPipe(pipe *parse.PipeNode, scoped bool, found map[string]bool) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if !scoped {
					found[strings.Join(a.Ident, ".")] = true
				}
			case *parse.VariableNode:
				if len(a.Ident) > 1 && a.Ident[0] == "$" {
					found[strings.Join(a.Ident[1:], ".")] = true
				}
			case *parse.PipeNode:
				walkPipe(a, scoped, found)
			}
		}
	}
}
