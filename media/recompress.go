// Package media walks a content document for image/video/audio directives,
// fetches their external targets, optionally recompresses images, and
// splices the result back in as base-64 data URIs.
package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/silberengel/epaperpub/common"
)

const (
	jpegQuality      = 85
	maxLongestSide   = 1000
	pngJPEGThreshold = 512 * 1024
)

// Recompress applies the embedder's recompression rules to one image's raw
// bytes: constrain the longest side to maxLongestSide without enlarging,
// re-encode per mediaType's rule, and fall back to the original bytes
// whenever the result isn't actually smaller. It reports the media type of
// the bytes it returns, which may differ from the input (PNG too large
// becomes JPEG).
func Recompress(data []byte, mediaType string) ([]byte, string) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		common.Logger.WithError(err).Debug("recompress: undecodable image, keeping original bytes")
		return data, mediaType
	}
	img = applyEXIFOrientation(data, img)
	img = constrainLongestSide(img, maxLongestSide)

	var out []byte
	var outType string
	switch {
	case mediaType == "image/png" && len(data) > pngJPEGThreshold:
		out, err = encodeJPEG(img)
		outType = "image/jpeg"
	case mediaType == "image/png":
		out, err = encodePNG(img)
		outType = "image/png"
	case mediaType == "image/webp":
		// No WebP encoder available; the bytes pass through unchanged.
		return data, mediaType
	default:
		out, err = encodeJPEG(img)
		outType = "image/jpeg"
	}
	if err != nil {
		common.Logger.WithError(err).WithField("format", format).Debug("recompress: encode failed, keeping original")
		return data, mediaType
	}
	if len(out) >= len(data) {
		return data, mediaType
	}
	return out, outType
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// constrainLongestSide resizes img so its longest side is at most max,
// preserving aspect ratio. Images already within bounds are returned
// unchanged — the rule never enlarges.
func constrainLongestSide(img image.Image, max int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= max {
		return img
	}
	if w >= h {
		return resize.Resize(uint(max), 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, uint(max), img, resize.Lanczos3)
}

// applyEXIFOrientation rotates/flips img according to its EXIF orientation
// tag, if present. E-paper renderers don't run a layout engine that honors
// EXIF metadata, so orientation must be baked into the pixels up front.
func applyEXIFOrientation(raw []byte, img image.Image) image.Image {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}
	switch orientation {
	case 3:
		return rotate180(img)
	case 6:
		return rotate90CW(img)
	case 8:
		return rotate90CCW(img)
	default:
		return img
	}
}

func rotate90CW(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x, img.At(x, y))
		}
	}
	return dst
}

func rotate90CCW(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(y, b.Max.X-1-x, img.At(x, y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, b.Max.Y-1-y, img.At(x, y))
		}
	}
	return dst
}
