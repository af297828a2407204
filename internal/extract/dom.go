package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FragmentKind classifies one child of an element for description normalization.
type FragmentKind int

const (
	// TextFragment is a plain text node.
	TextFragment FragmentKind = iota
	// LineBreakFragment is a <br> element.
	LineBreakFragment
	// LinkFragment is an <a> element; Text holds its inner text.
	LinkFragment
	// MarkupFragment is any other node; Text holds its serialized HTML.
	MarkupFragment
)

// Fragment is one direct child of an element.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// Node is the query surface extraction and listing parsing depend on.
// Implementations wrap a single element (or the document root).
type Node interface {
	// Find returns the first descendant with the given tag and, when class
	// is non-empty, carrying that class.
	Find(tag, class string) (Node, bool)
	// FindAll returns every descendant with the given tag in document order.
	FindAll(tag string) []Node
	// HasAncestor reports whether any ancestor has the given tag.
	HasAncestor(tag string) bool
	// Children enumerates the direct children in order.
	Children() []Fragment
	Text() string
	Attr(name string) (string, bool)
}

// Parse builds a Node for the document read from r.
func Parse(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return selectionNode{sel: doc.Selection}, nil
}

// ParseBytes is Parse over an in-memory body.
func ParseBytes(body []byte) (Node, error) {
	return Parse(bytes.NewReader(body))
}

type selectionNode struct {
	sel *goquery.Selection
}

func (n selectionNode) Find(tag, class string) (Node, bool) {
	found := n.sel.Find(tag)
	if class != "" {
		found = found.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.HasClass(class)
		})
	}
	if found.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: found.First()}, true
}

func (n selectionNode) FindAll(tag string) []Node {
	found := n.sel.Find(tag)
	nodes := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, selectionNode{sel: s})
	})
	return nodes
}

func (n selectionNode) HasAncestor(tag string) bool {
	return n.sel.ParentsFiltered(tag).Length() > 0
}

func (n selectionNode) Children() []Fragment {
	if n.sel.Length() == 0 {
		return nil
	}
	var out []Fragment
	for c := n.sel.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		out = append(out, classify(c))
	}
	return out
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func classify(c *html.Node) Fragment {
	switch c.Type {
	case html.TextNode:
		return Fragment{Kind: TextFragment, Text: c.Data}
	case html.ElementNode:
		switch c.DataAtom {
		case atom.Br:
			return Fragment{Kind: LineBreakFragment}
		case atom.A:
			return Fragment{Kind: LinkFragment, Text: goquery.NewDocumentFromNode(c).Text()}
		}
	}
	return Fragment{Kind: MarkupFragment, Text: render(c)}
}

func render(c *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, c); err != nil {
		return ""
	}
	return buf.String()
}
