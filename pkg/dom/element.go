// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dom

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a handle to a node owned by a Document. Handles are cheap and
// two handles to the same node compare equal with Is.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node exposes the underlying html node
func (e *Element) Node() *html.Node { return e.node }

// Document returns the owning document
func (e *Element) Document() *Document { return e.doc }

// Is reports whether both handles point at the same node
func (e *Element) Is(other *Element) bool {
	return e != nil && other != nil && e.node == other.node
}

// Tag returns the lower case tag name
func (e *Element) Tag() string {
	if e.node.Type != html.ElementNode {
		return ""
	}
	return e.node.Data
}

func (e *Element) ID() string {
	v, _ := e.Attr("id")
	return v
}

// Attr returns the attribute value and whether it is present
func (e *Element) Attr(key string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.node, key)
}

// SetAttr sets or replaces an attribute
func (e *Element) SetAttr(key, val string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.node, key, val)
}

// RemoveAttr deletes an attribute when present
func (e *Element) RemoveAttr(key string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, a := range e.node.Attr {
		if a.Key == key {
			e.node.Attr = append(e.node.Attr[:i], e.node.Attr[i+1:]...)
			return
		}
	}
}

// AddClass appends classes not already present
func (e *Element) AddClass(classes ...string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	cur, _ := attr(e.node, "class")
	fields := strings.Fields(cur)
	for _, c := range classes {
		if !hasClass(e.node, c) {
			fields = append(fields, c)
			setAttr(e.node, "class", strings.Join(fields, " "))
		}
	}
}

func (e *Element) HasClass(class string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return hasClass(e.node, class)
}

// SetStyle sets one inline style property
func (e *Element) SetStyle(prop, val string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	styles := parseStyle(e.node)
	styles.set(prop, val)
	setAttr(e.node, "style", styles.String())
}

// Style returns one inline style property
func (e *Element) Style(prop string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return parseStyle(e.node).get(prop)
}

// SetText replaces the children with a single text node
func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.clearLocked()
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Text returns the concatenated text content
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var sb strings.Builder
	walk(e.node, func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
	})
	return sb.String()
}

// AppendChild moves child under e
func (e *Element) AppendChild(child *Element) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
}

// Remove detaches e from its parent and drops its listeners
func (e *Element) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
	e.doc.dropListeners(e.node)
}

// Clear removes every child of e
func (e *Element) Clear() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.clearLocked()
}

func (e *Element) clearLocked() {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		e.doc.dropListeners(c)
		c = next
	}
}

// Children returns the element children of e
func (e *Element) Children() []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if e.node.Parent == nil || e.node.Parent.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(e.node.Parent)
}

// Find returns the first descendant matching selector
func (e *Element) Find(selector string) *Element {
	match, err := compileSelector(selector)
	if err != nil {
		return nil
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if n := findNode(c, match); n != nil {
			return e.doc.wrap(n)
		}
	}
	return nil
}

// Connected reports whether e is attached to the document
func (e *Element) Connected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.connectedLocked()
}

func (e *Element) connectedLocked() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// OffsetHeight is the laid out height in pixels. Detached elements,
// elements under display:none and elements matched by a cosmetic filter
// have no height. Otherwise the inline height, then the height attribute,
// is used.
func (e *Element) OffsetHeight() int {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if !e.connectedLocked() {
		return 0
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if parseStyle(n).get("display") == "none" {
			return 0
		}
		for c := range e.doc.filters {
			if hasClass(n, c) {
				return 0
			}
		}
	}
	if h, ok := parsePixels(parseStyle(e.node).get("height")); ok {
		return h
	}
	if v, ok := attr(e.node, "height"); ok {
		if h, ok := parsePixels(v); ok {
			return h
		}
	}
	return 0
}

// AddEventListener registers fn for typ and returns its remover
func (e *Element) AddEventListener(typ string, fn Listener) func() {
	return e.doc.addListener(e.node, typ, fn)
}

// Dispatch fires typ at e and bubbles it to the root
func (e *Element) Dispatch(typ string) {
	e.doc.dispatch(e.node, Event{Type: typ, Target: e})
}

// Click is Dispatch("click")
func (e *Element) Click() { e.Dispatch("click") }

// OuterHTML renders e and its subtree
func (e *Element) OuterHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, e.node)
	return buf.String()
}

// InnerHTML renders the children of e
func (e *Element) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var buf bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// IsScript reports whether e is a script element
func (e *Element) IsScript() bool {
	return e.node.Type == html.ElementNode && e.node.DataAtom == atom.Script
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

type styleDecl struct {
	props []string
	vals  map[string]string
}

func parseStyle(n *html.Node) *styleDecl {
	s := &styleDecl{vals: make(map[string]string)}
	raw, _ := attr(n, "style")
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		s.set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return s
}

func (s *styleDecl) set(prop, val string) {
	prop = strings.ToLower(prop)
	if _, ok := s.vals[prop]; !ok {
		s.props = append(s.props, prop)
	}
	s.vals[prop] = val
}

func (s *styleDecl) get(prop string) string {
	return s.vals[strings.ToLower(prop)]
}

func (s *styleDecl) String() string {
	parts := make([]string, 0, len(s.props))
	for _, p := range s.props {
		parts = append(parts, p+": "+s.vals[p])
	}
	return strings.Join(parts, "; ")
}

func parsePixels(v string) (int, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
