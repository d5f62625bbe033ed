package component

import (
	"html"
	"sort"
	"strings"
)

// VKind is the node type discriminator.
type VKind uint8

const (
	KindElement  VKind = iota // <div>, <span>, etc.
	KindText                  // Plain text node
	KindFragment              // Grouping without wrapper
)

// VNode is a rendered node. A nil *VNode renders nothing.
type VNode struct {
	Kind     VKind
	Tag      string
	Attrs    map[string]string
	Children []*VNode
	Text     string
}

// Element creates an element node.
func Element(tag string, children ...*VNode) *VNode {
	return &VNode{Kind: KindElement, Tag: tag, Children: children}
}

// Text creates a text node.
func Text(s string) *VNode {
	return &VNode{Kind: KindText, Text: s}
}

// Fragment groups children without a wrapper element.
func Fragment(children ...*VNode) *VNode {
	return &VNode{Kind: KindFragment, Children: children}
}

// Attr sets an attribute and returns the node.
func (v *VNode) Attr(name, value string) *VNode {
	if v.Attrs == nil {
		v.Attrs = make(map[string]string)
	}
	v.Attrs[name] = value
	return v
}

// RenderHTML renders n as HTML. Attributes are written in name order.
func RenderHTML(n *VNode) string {
	var b strings.Builder
	renderNode(&b, n)
	return b.String()
}

func renderNode(b *strings.Builder, n *VNode) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindText:
		b.WriteString(html.EscapeString(n.Text))
	case KindFragment:
		for _, c := range n.Children {
			renderNode(b, c)
		}
	case KindElement:
		b.WriteByte('<')
		b.WriteString(n.Tag)
		names := make([]string, 0, len(n.Attrs))
		for name := range n.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteByte(' ')
			b.WriteString(name)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(n.Attrs[name]))
			b.WriteByte('"')
		}
		b.WriteByte('>')
		for _, c := range n.Children {
			renderNode(b, c)
		}
		b.WriteString("</")
		b.WriteString(n.Tag)
		b.WriteByte('>')
	}
}
