package index

import "strings"

// RenderAnchor renders one link followed by a line break. href and name are
// written as given; callers own any escaping.
func RenderAnchor(href, name string) string {
	return `<a href="` + href + `">` + name + `</a><br>`
}

// RenderIndex renders a minimal index page with title used for both the
// document title and the heading, followed by anchors in order.
func RenderIndex(title string, anchors []string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><title>`)
	b.WriteString(title)
	b.WriteString(`</title></head><body><h1>`)
	b.WriteString(title)
	b.WriteString(`</h1>`)
	for _, a := range anchors {
		b.WriteString(a)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}
