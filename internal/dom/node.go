package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr returns the value of attribute key, or "" when absent
func Attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// HasAttr reports whether n carries attribute key
func HasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces attribute key on n
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key from n
func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// Classes returns the class list of n
func Classes(n *html.Node) []string {
	return strings.Fields(Attr(n, "class"))
}

// HasClass reports whether n has class c
func HasClass(n *html.Node, c string) bool {
	for _, have := range Classes(n) {
		if have == c {
			return true
		}
	}
	return false
}

// AddClass adds c to n's class list. It reports false when c was already present.
func AddClass(n *html.Node, c string) bool {
	if HasClass(n, c) {
		return false
	}
	SetAttr(n, "class", strings.TrimSpace(Attr(n, "class")+" "+c))
	return true
}

// RemoveClass drops c from n's class list. It reports whether c was present.
func RemoveClass(n *html.Node, c string) bool {
	classes := Classes(n)
	kept := classes[:0]
	found := false
	for _, have := range classes {
		if have == c {
			found = true
			continue
		}
		kept = append(kept, have)
	}
	if !found {
		return false
	}
	if len(kept) == 0 {
		RemoveAttr(n, "class")
	} else {
		SetAttr(n, "class", strings.Join(kept, " "))
	}
	return true
}

// Element creates a detached element. attrs are key/value pairs.
func Element(tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// TextNode creates a detached text node
func TextNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// ParseFragment parses markup in the context of a <div>
func ParseFragment(markup string) ([]*html.Node, error) {
	ctx := Element("div")
	return html.ParseFragment(strings.NewReader(markup), ctx)
}

// TextContent concatenates every text node under n
func TextContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

// Select wraps n in a goquery selection
func Select(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// FindAll returns n itself (when it matches) followed by every matching descendant
func FindAll(n *html.Node, selector string) []*html.Node {
	if n == nil {
		return nil
	}
	sel := Select(n)
	out := append([]*html.Node{}, sel.Filter(selector).Nodes...)
	return append(out, sel.Find(selector).Nodes...)
}

// FindFirst is FindAll limited to the first hit
func FindFirst(n *html.Node, selector string) *html.Node {
	if all := FindAll(n, selector); len(all) > 0 {
		return all[0]
	}
	return nil
}

// Matches reports whether n matches selector
func Matches(n *html.Node, selector string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return Select(n).Is(selector)
}

// Closest returns the nearest inclusive ancestor matching selector
func Closest(n *html.Node, selector string) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if Matches(cur, selector) {
			return cur
		}
	}
	return nil
}

// PrevElementSibling skips text and comment nodes going backwards
func PrevElementSibling(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// NextElementSibling skips text and comment nodes going forwards
func NextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}
