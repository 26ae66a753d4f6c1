package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderAnchor(t *testing.T) {
	assert.Equal(t, `<a href="https://x/y?sig=1">y-1.0.tar.gz</a><br>`, RenderAnchor("https://x/y?sig=1", "y-1.0.tar.gz"))
}

func TestRenderAnchor_NoEscaping(t *testing.T) {
	got := RenderAnchor(`a&b"`, `<b>`)
	assert.Equal(t, `<a href="a&b"">`+`<b></a><br>`, got)
}

func TestRenderIndex(t *testing.T) {
	got := RenderIndex("Links for demo", []string{
		RenderAnchor("u1", "n1"),
		RenderAnchor("u2", "n2"),
	})
	assert.Equal(t,
		`<!DOCTYPE html><html><head><title>Links for demo</title></head>`+
			`<body><h1>Links for demo</h1><a href="u1">n1</a><br><a href="u2">n2</a><br></body></html>`,
		got)
}

func TestRenderIndex_Empty(t *testing.T) {
	got := RenderIndex("Simple index", nil)
	assert.Equal(t, `<!DOCTYPE html><html><head><title>Simple index</title></head><body><h1>Simple index</h1></body></html>`, got)
	assert.Equal(t, 0, strings.Count(got, "<a "))
}

func TestRenderIndex_Deterministic(t *testing.T) {
	anchors := []string{RenderAnchor("a", "a"), RenderAnchor("b", "b")}
	first := RenderIndex("t", anchors)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, RenderIndex("t", anchors))
	}
}
