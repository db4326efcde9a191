// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dom is a headless page model. It backs the SDK host in tests and
// server-side embeds, and it is the reference for adapting a real runtime to
// the sdk.Host interface.
package dom

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Event is dispatched to element and window listeners
type Event struct {
	Type   string
	Target *Element
}

// Listener handles a dispatched event
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Document owns an html.Node tree. All node mutation goes through the
// document lock, so a Document may be shared across goroutines.
type Document struct {
	mu        sync.RWMutex
	root      *html.Node
	body      *html.Node
	filters   map[string]struct{}
	listeners map[*html.Node]map[string][]listenerEntry
	nextID    int
}

// NewDocument creates an empty html document
func NewDocument() *Document {
	root, err := html.Parse(strings.NewReader("<!DOCTYPE html><html><head></head><body></body></html>"))
	if err != nil {
		// parsing a constant cannot fail
		panic(err)
	}
	d := &Document{
		root:      root,
		filters:   make(map[string]struct{}),
		listeners: make(map[*html.Node]map[string][]listenerEntry),
	}
	d.body = findNode(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
	return d
}

// Body returns the document body
func (d *Document) Body() *Element {
	return d.wrap(d.body)
}

// CreateElement creates a detached element
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	return d.wrap(n)
}

// CreateTextNode creates a detached text node
func (d *Document) CreateTextNode(text string) *Element {
	return d.wrap(&html.Node{Type: html.TextNode, Data: text})
}

// GetElementByID finds an attached element by id
func (d *Document) GetElementByID(id string) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := findNode(d.root, func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return n.Type == html.ElementNode && ok && v == id
	})
	return d.wrap(n)
}

// QuerySelector supports the selector forms embed snippets use:
// "#id", ".class", "tag", "tag.class" and "[attr]".
func (d *Document) QuerySelector(selector string) *Element {
	match, err := compileSelector(selector)
	if err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap(findNode(d.root, match))
}

// FindAll returns every attached element matching fn
func (d *Document) FindAll(fn func(*Element) bool) []*Element {
	d.mu.RLock()
	var nodes []*html.Node
	walk(d.root, func(n *html.Node) {
		if n.Type == html.ElementNode {
			nodes = append(nodes, n)
		}
	})
	d.mu.RUnlock()

	var out []*Element
	for _, n := range nodes {
		el := d.wrap(n)
		if fn(el) {
			out = append(out, el)
		}
	}
	return out
}

// InstallCosmeticFilter hides every element carrying one of the classes,
// the way a content blocker's element hiding rules do.
func (d *Document) InstallCosmeticFilter(classes ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range classes {
		d.filters[c] = struct{}{}
	}
}

// ParseFragment parses markup in the context of parent
func (d *Document) ParseFragment(markup string, parent *Element) ([]*Element, error) {
	ctx := d.body
	if parent != nil && parent.node.Type == html.ElementNode {
		ctx = parent.node
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     ctx.Data,
		DataAtom: ctx.DataAtom,
	})
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

// HTML renders the whole document
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	return &Element{doc: d, node: n}
}

func (d *Document) addListener(n *html.Node, typ string, fn Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	if d.listeners[n] == nil {
		d.listeners[n] = make(map[string][]listenerEntry)
	}
	d.listeners[n][typ] = append(d.listeners[n][typ], listenerEntry{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		entries := d.listeners[n][typ]
		for i, e := range entries {
			if e.id == id {
				d.listeners[n][typ] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// dispatch bubbles ev from target to the root. Listeners run without the
// document lock held so they may mutate the tree.
func (d *Document) dispatch(target *html.Node, ev Event) {
	d.mu.RLock()
	var chain []Listener
	for n := target; n != nil; n = n.Parent {
		for _, e := range d.listeners[n][ev.Type] {
			chain = append(chain, e.fn)
		}
	}
	d.mu.RUnlock()

	for _, fn := range chain {
		fn(ev)
	}
}

func (d *Document) dropListeners(n *html.Node) {
	walk(n, func(c *html.Node) {
		delete(d.listeners, c)
	})
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func compileSelector(selector string) (func(*html.Node) bool, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty selector")
	}

	switch {
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		return func(n *html.Node) bool {
			v, ok := attr(n, "id")
			return n.Type == html.ElementNode && ok && v == id
		}, nil
	case strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]"):
		key := selector[1 : len(selector)-1]
		return func(n *html.Node) bool {
			_, ok := attr(n, key)
			return n.Type == html.ElementNode && ok
		}, nil
	}

	tag, class, _ := strings.Cut(selector, ".")
	tag = strings.ToLower(tag)
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		if tag != "" && n.Data != tag {
			return false
		}
		return class == "" || hasClass(n, class)
	}, nil
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}
