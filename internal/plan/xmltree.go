package plan

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Helpers over the etree document. Lookups match the local tag inside the
// showplan namespace and walk descendants in document order (etree's own
// "//" path selector is breadth-first).

func isShowplan(e *etree.Element, tag string) bool {
	return e.Tag == tag && e.NamespaceURI() == Namespace
}

// findAll returns every descendant of e with the given tag, in document order.
func findAll(e *etree.Element, tag string) []*etree.Element {
	var found []*etree.Element
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if isShowplan(c, tag) {
				found = append(found, c)
			}
			walk(c)
		}
	}
	walk(e)
	return found
}

// findFirst returns the first descendant of e with the given tag that also
// satisfies accept (when non-nil).
func findFirst(e *etree.Element, tag string, accept func(*etree.Element) bool) *etree.Element {
	for _, c := range e.ChildElements() {
		if isShowplan(c, tag) && (accept == nil || accept(c)) {
			return c
		}
		if found := findFirst(c, tag, accept); found != nil {
			return found
		}
	}
	return nil
}

func child(e *etree.Element, tag string) *etree.Element {
	for _, c := range e.ChildElements() {
		if isShowplan(c, tag) {
			return c
		}
	}
	return nil
}

func children(e *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if isShowplan(c, tag) {
			out = append(out, c)
		}
	}
	return out
}

func threadZero(e *etree.Element) bool {
	return e.SelectAttrValue("Thread", "") == "0"
}

// attributes copies all attributes of e except namespace declarations.
func attributes(e *etree.Element) map[string]string {
	attrs := make(map[string]string, len(e.Attr))
	for _, a := range e.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		attrs[a.FullKey()] = a.Value
	}
	return attrs
}

func attrFloat(e *etree.Element, key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(e.SelectAttrValue(key, "")), 64)
	if err != nil {
		return 0
	}
	return v
}

func attrInt(e *etree.Element, key string) int64 {
	s := strings.TrimSpace(e.SelectAttrValue(key, ""))
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(v)
	}
	return 0
}
