package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeFindsBlockAndInlineDirectives(t *testing.T) {
	content := `See image::https://example.com/a.png[Alt text] and inline image:https://example.com/b.jpg[] too.
video::https://example.com/c.mp4[width=640]
audio:https://example.com/d.mp3[]`

	directives := Tokenize(content)
	require.Len(t, directives, 4)

	assert.Equal(t, KindImage, directives[0].Kind)
	assert.Equal(t, "::", directives[0].Delimiter)
	assert.Equal(t, "https://example.com/a.png", directives[0].Target)
	assert.Equal(t, "[Alt text]", directives[0].Attrs)

	assert.Equal(t, KindImage, directives[1].Kind)
	assert.Equal(t, ":", directives[1].Delimiter)
	assert.Equal(t, "https://example.com/b.jpg", directives[1].Target)

	assert.Equal(t, KindVideo, directives[2].Kind)
	assert.Equal(t, KindAudio, directives[3].Kind)
}

func TestSpliceRebuildsFromTokensNotSubstringSearch(t *testing.T) {
	// The same URL appears twice; Splice must rewrite only the occurrence
	// it was told to, by offset, never by a substring re-scan.
	content := "image::https://cdn/img.png[one] and image::https://cdn/img.png[two]"
	directives := Tokenize(content)
	require.Len(t, directives, 2)

	calls := 0
	out := Splice(content, directives, func(d Directive) (string, bool) {
		calls++
		if calls == 1 {
			// First call processes the last directive (back-to-front).
			return "REPLACED-SECOND", true
		}
		return "", false
	})

	assert.Equal(t, "image::https://cdn/img.png[one] and image::REPLACED-SECOND[two]", out)
}

func TestSpliceLeavesUnmatchedDirectivesUntouched(t *testing.T) {
	content := "image::https://cdn/a.png[]"
	directives := Tokenize(content)
	out := Splice(content, directives, func(Directive) (string, bool) { return "", false })
	assert.Equal(t, content, out)
}
