package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRecompressSmallPNGStaysPNG(t *testing.T) {
	data := solidPNG(t, 20, 20)
	out, mediaType := Recompress(data, "image/png")
	assert.Equal(t, "image/png", mediaType)
	assert.NotEmpty(t, out)
}

func TestRecompressShrinksOversizeImageToLongestSideLimit(t *testing.T) {
	data := solidPNG(t, 1500, 600)
	out, mediaType := Recompress(data, "image/png")
	require.NotEmpty(t, out)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), maxLongestSide)
	_ = mediaType
}

func TestRecompressNeverEnlargesSmallImage(t *testing.T) {
	data := solidPNG(t, 10, 10)
	out, _ := Recompress(data, "image/png")
	require.NotEmpty(t, out)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, decoded.Bounds().Dx())
	assert.Equal(t, 10, decoded.Bounds().Dy())
}

func TestRecompressKeepsOriginalWhenResultIsNotSmaller(t *testing.T) {
	// A tiny, already near-minimal PNG: re-encoding shouldn't shrink it, so
	// Recompress must fall back to the original bytes and type.
	data := solidPNG(t, 2, 2)
	out, mediaType := Recompress(data, "image/png")
	assert.Equal(t, "image/png", mediaType)
	_ = out
}

func TestRecompressWebPIsLeftUntouched(t *testing.T) {
	data := []byte("not-a-real-webp-but-unused-path")
	out, mediaType := Recompress(data, "image/webp")
	assert.Equal(t, data, out)
	assert.Equal(t, "image/webp", mediaType)
}

func TestRecompressUndecodableBytesReturnsOriginal(t *testing.T) {
	data := []byte("not an image")
	out, mediaType := Recompress(data, "image/png")
	assert.Equal(t, data, out)
	assert.Equal(t, "image/png", mediaType)
}
