package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/silberengel/epaperpub/common"
)

const maxMediaBytes = 50 * 1024 * 1024 // 50 MiB absolute ceiling

var streamingHosts = []string{
	"youtube.com", "youtu.be", "vimeo.com", "dailymotion.com", "twitch.tv", "soundcloud.com",
}

var extensionTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".webp": "image/webp", ".svg": "image/svg+xml",
	".mp4": "video/mp4", ".webm": "video/webm",
	".mp3": "audio/mpeg", ".ogg": "audio/ogg", ".wav": "audio/wav",
}

// IsStreamingHost reports whether url names one of the recognized
// streaming-service hosts, by plain substring match.
func IsStreamingHost(url string) bool {
	for _, host := range streamingHosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}

// budgetFor returns the per-type fetch time budget: 10s for images, 30s for
// audio/video.
func budgetFor(kind Kind) time.Duration {
	if kind == KindImage {
		return 10 * time.Second
	}
	return 30 * time.Second
}

// limitCounter is an io.Writer that counts bytes written and errors once
// the count passes the ceiling, so an unbounded response body is abandoned
// mid-stream instead of buffered whole.
type limitCounter struct {
	total uint64
	limit uint64
}

func (c *limitCounter) Write(p []byte) (int, error) {
	n := len(p)
	c.total += uint64(n)
	if c.total > c.limit {
		return n, fmt.Errorf("%w: exceeded %s", errOversize, humanize.Bytes(c.limit))
	}
	return n, nil
}

var errOversize = errors.New("media exceeds size ceiling")

// Fetched is one successfully downloaded media target.
type Fetched struct {
	Data      []byte
	MediaType string
}

// Fetch downloads target's bytes over httpClient, subject to the directive
// kind's time budget and the absolute size ceiling, checked against both
// the declared Content-Length and the observed byte count. The media type
// is read from the response's Content-Type header, falling back to the
// target's file extension and finally to application/octet-stream.
func Fetch(ctx context.Context, httpClient *http.Client, target string, kind Kind) (Fetched, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, budgetFor(kind))
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		return Fetched{}, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Fetched{}, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Fetched{}, fmt.Errorf("%w: status %d", common.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.ContentLength > maxMediaBytes {
		return Fetched{}, common.ErrMediaTooLarge
	}

	counter := &limitCounter{limit: maxMediaBytes}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.TeeReader(resp.Body, counter)); err != nil {
		if errors.Is(err, errOversize) {
			return Fetched{}, common.ErrMediaTooLarge
		}
		if fetchCtx.Err() != nil {
			return Fetched{}, common.ErrMediaTimeout
		}
		return Fetched{}, err
	}

	mediaType := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = mediaTypeFromExtension(target)
	}

	common.Logger.WithField("target", target).WithField("bytes", counter.total).Debug("media fetch resolved")
	return Fetched{Data: buf.Bytes(), MediaType: mediaType}, nil
}

func mediaTypeFromExtension(target string) string {
	ext := strings.ToLower(path.Ext(target))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}
