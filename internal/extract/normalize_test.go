package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraphFragments(t *testing.T, inner string) []Fragment {
	t.Helper()
	doc, err := ParseBytes([]byte("<html><body><p>" + inner + "</p></body></html>"))
	require.NoError(t, err)
	p, ok := doc.Find("p", "")
	require.True(t, ok)
	return p.Children()
}

func TestNormalizeFragments(t *testing.T) {
	cases := []struct {
		name  string
		inner string
		want  string
	}{
		{"plain", "Buffer overflow in foo.", "Buffer overflow in foo."},
		{"link label kept", `See <a href="/x">here</a> for info.`, "See here for info."},
		{"line breaks dropped", "One.<br/>Two.<br>Three.", "One. Two. Three."},
		{"other markup serialized", "Affects <b>bar</b> only.", "Affects <b>bar</b> only."},
		{"whitespace collapsed", "  lots \n of\tspace  ", "lots of space"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeFragments(paragraphFragments(t, tc.inner)))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, s := range []string{
		"See here for info. More text.",
		"already normalized",
		"",
		"Affects <b>bar</b> only.",
	} {
		once := Normalize(s)
		assert.Equal(t, s, once)
		assert.Equal(t, once, Normalize(once))
		assert.Equal(t, s, NormalizeFragments([]Fragment{{Kind: TextFragment, Text: s}}))
	}
}

func TestChildren_Classification(t *testing.T) {
	frags := paragraphFragments(t, `a<br/><a href="#">b</a><i>c</i>`)
	require.Len(t, frags, 4)
	assert.Equal(t, Fragment{Kind: TextFragment, Text: "a"}, frags[0])
	assert.Equal(t, LineBreakFragment, frags[1].Kind)
	assert.Equal(t, Fragment{Kind: LinkFragment, Text: "b"}, frags[2])
	assert.Equal(t, Fragment{Kind: MarkupFragment, Text: "<i>c</i>"}, frags[3])
}

func TestHasAncestor(t *testing.T) {
	doc, err := ParseBytes([]byte(`<div class="results"><a href="/1">x</a><nav><ul><li><a href="/2">next</a></li></ul></nav></div>`))
	require.NoError(t, err)
	anchors := doc.FindAll("a")
	require.Len(t, anchors, 2)
	assert.False(t, anchors[0].HasAncestor("nav"))
	assert.True(t, anchors[1].HasAncestor("nav"))
}
