package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/worker"
)

// embedConcurrency bounds how many directive fetches run at once for a
// single document, so a publication with many images doesn't open dozens
// of simultaneous outbound connections.
const embedConcurrency = 4

type directiveResult struct {
	replacement string
	ok          bool
}

// EmbedMode selects which directive kinds Embed processes. ModeAll handles
// every kind; ModeImagesOnly is the fallback pass run when the first pass's
// output still exceeds the document size ceiling.
type EmbedMode int

const (
	ModeAll EmbedMode = iota
	ModeImagesOnly
)

// Embed walks content for media directives and replaces each eligible
// target's URL with a base-64 data URI of its fetched (and, for images,
// recompressed) bytes. Streaming-service hosts and anything that fails to
// fetch within budget or the size ceiling are left untouched. If the result
// still exceeds the document size ceiling, the caller should re-invoke with
// mode=ModeImagesOnly.
func Embed(ctx context.Context, httpClient *http.Client, content string, mode EmbedMode) string {
	directives := Tokenize(content)
	if len(directives) == 0 {
		return content
	}

	results := worker.MapBounded(ctx, embedConcurrency, directives, func(ctx context.Context, d Directive) directiveResult {
		if mode == ModeImagesOnly && d.Kind != KindImage {
			return directiveResult{}
		}
		if IsStreamingHost(d.Target) {
			return directiveResult{}
		}

		fetched, err := Fetch(ctx, httpClient, d.Target, d.Kind)
		if err != nil {
			common.Logger.WithField("target", d.Target).WithError(err).Debug("embed: leaving external URL in place")
			return directiveResult{}
		}

		data, mediaType := fetched.Data, fetched.MediaType
		if d.Kind == KindImage {
			data, mediaType = Recompress(data, mediaType)
		}

		return directiveResult{replacement: dataURI(mediaType, data), ok: true}
	})

	byStart := make(map[int]directiveResult, len(directives))
	for i, d := range directives {
		byStart[d.Start] = results[i]
	}

	return Splice(content, directives, func(d Directive) (string, bool) {
		r := byStart[d.Start]
		return r.replacement, r.ok
	})
}

func dataURI(mediaType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

// EmbedWithSizeCeiling runs Embed once in ModeAll, and re-runs it in
// ModeImagesOnly against the original content if the embedded result
// exceeds ceiling bytes — leaving video/audio directives external in the
// fallback pass.
func EmbedWithSizeCeiling(ctx context.Context, httpClient *http.Client, content string, ceiling int) string {
	embedded := Embed(ctx, httpClient, content, ModeAll)
	if len(embedded) <= ceiling {
		return embedded
	}
	common.Logger.WithField("bytes", len(embedded)).Debug("embed: document over size ceiling, re-running images-only")
	return Embed(ctx, httpClient, content, ModeImagesOnly)
}
