package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/silberengel/epaperpub/cache"
	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/event"
	"github.com/silberengel/epaperpub/media"
	"github.com/silberengel/epaperpub/nostraddr"
	"github.com/silberengel/epaperpub/orchestrator"
	"github.com/silberengel/epaperpub/publication"
	"github.com/silberengel/epaperpub/relay"
)

// Deps bundles the collaborators every route handler needs.
type Deps struct {
	Orchestrator *orchestrator.Service
	Renderer     *RendererClient
	HTTPClient   *http.Client
	Pool         *relay.Pool
}

// RegisterRoutes wires the public HTTP surface onto e.
func RegisterRoutes(e *echo.Echo, deps Deps) {
	e.GET("/", deps.handleDetail(event.KindPublicationIndex))
	e.GET("/books", deps.handleList(event.KindPublicationIndex))
	e.GET("/articles", deps.handleList(event.KindArticle))
	e.GET("/highlights", deps.handleHighlights)
	e.GET("/view", deps.handleView)
	e.GET("/view-epub", deps.handleDownload("epub"))
	e.GET("/download", deps.handleDownloadQuery)
	e.GET("/status", deps.handleStatus)
	e.POST("/clear-cache", deps.handleClearCache)
	e.GET("/image-proxy", deps.handleImageProxy)
	e.GET("/healthz", HealthCheckHandler("epaperpub", "1.0.0"))
}

// relaysFromQuery parses the optional comma-separated relays= override.
func relaysFromQuery(c echo.Context) []string {
	raw := c.QueryParam("relays")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// addressFromQuery resolves the request's canonical address from either an
// naddr= identifier or the author=/d= pair. The second return value carries
// the relay hints embedded in a decoded naddr, so callers can feed them
// into the relay-selection precedence.
func addressFromQuery(c echo.Context, defaultKind int) (event.Address, []string, error) {
	if raw := c.QueryParam("naddr"); raw != "" {
		decoded, err := nostraddr.Decode(raw)
		if err != nil {
			return event.Address{}, nil, err
		}
		if decoded.Variant != nostraddr.VariantNaddr {
			return event.Address{}, nil, fmt.Errorf("%w: expected an naddr identifier", common.ErrInvalidAddress)
		}
		if !nostraddr.IsPublicationKind(decoded.Kind) && !nostraddr.IsArticleKind(decoded.Kind) {
			return event.Address{}, nil, fmt.Errorf("%w: kind %d", common.ErrUnsupportedKind, decoded.Kind)
		}
		addr := event.Address{Kind: decoded.Kind, Author: decoded.PubKey, Discriminator: decoded.Discriminator}
		return addr, decoded.Relays, nil
	}
	addr := event.Address{
		Kind:          defaultKind,
		Author:        c.QueryParam("author"),
		Discriminator: c.QueryParam("d"),
	}
	if addr.Author == "" || addr.Discriminator == "" {
		return event.Address{}, nil, common.ErrInvalidAddress
	}
	return addr, nil, nil
}

func (d Deps) handleDetail(kind int) echo.HandlerFunc {
	return func(c echo.Context) error {
		addr, hints, err := addressFromQuery(c, kind)
		if err != nil {
			return err
		}
		relays := d.Orchestrator.EffectiveRelays(relaysFromQuery(c), hints, addr.Kind)
		refresh := c.QueryParam("refresh") == "1"
		ev, err := d.Orchestrator.GetDetail(c.Request().Context(), addr, relays, refresh)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, ev)
	}
}

func (d Deps) handleList(kind int) echo.HandlerFunc {
	return func(c echo.Context) error {
		if query := c.QueryParam("q"); query != "" {
			matched, err := d.Orchestrator.Search(c.Request().Context(), kind, query, relaysFromQuery(c))
			if err != nil {
				return err
			}
			return c.JSON(http.StatusOK, matched)
		}
		list, err := d.Orchestrator.List(c.Request().Context(), kind, relaysFromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, list)
	}
}

func (d Deps) handleHighlights(c echo.Context) error {
	list, err := d.Orchestrator.ListHighlights(c.Request().Context(), relaysFromQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// buildDocument resolves a publication's full hierarchy and flattens it
// into one content string, each node's content separated by a section
// break, in source tag order. relays is the already-resolved relay set for
// this request, including any hints the address carried.
func (d Deps) buildDocument(c echo.Context, addr event.Address, relays []string, refresh bool) (string, event.Event, error) {
	root, err := d.Orchestrator.GetDetail(c.Request().Context(), addr, relays, refresh)
	if err != nil {
		return "", event.Event{}, err
	}
	node := d.Orchestrator.GetHierarchy(c.Request().Context(), root, relays)
	return flatten(node), root, nil
}

func flatten(node publication.Node) string {
	var b strings.Builder
	b.WriteString(node.Event.Content)
	for _, child := range node.Children {
		b.WriteString("\n\n")
		b.WriteString(flatten(child))
	}
	return b.String()
}

func (d Deps) handleView(c echo.Context) error {
	addr, hints, err := addressFromQuery(c, event.KindPublicationIndex)
	if err != nil {
		return err
	}
	relays := d.Orchestrator.EffectiveRelays(relaysFromQuery(c), hints, addr.Kind)
	content, root, err := d.buildDocument(c, addr, relays, c.QueryParam("refresh") == "1")
	if err != nil {
		return err
	}
	embedded := media.EmbedWithSizeCeiling(c.Request().Context(), d.HTTPClient, content, 50*1024*1024)
	comments := d.Orchestrator.GetComments(c.Request().Context(), root.Address(), relays)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"title":    root.FirstTagValue("title"),
		"author":   d.authorName(c, root),
		"content":  embedded,
		"comments": comments,
	})
}

// authorName resolves the root event's author to a human-readable profile
// name, falling back to the raw key when no profile can be found. Profile
// lookups follow the profile relay selection, not the publication's, so
// only the query override is passed through.
func (d Deps) authorName(c echo.Context, root event.Event) string {
	profile, err := d.Orchestrator.ResolveHandle(c.Request().Context(), root.PubKey, relaysFromQuery(c))
	if err != nil {
		return root.PubKey
	}
	if name := profileDisplayName(profile); name != "" {
		return name
	}
	return root.PubKey
}

// profileDisplayName reads the display name out of a profile event's
// content record, preferring display_name over name.
func profileDisplayName(ev event.Event) string {
	var p struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	if json.Unmarshal([]byte(ev.Content), &p) != nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func (d Deps) handleDownloadQuery(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "epub"
	}
	return d.handleDownload(format)(c)
}

func (d Deps) handleDownload(format string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !RecognizedFormat(format) {
			return fmt.Errorf("%w: format %q", common.ErrUnsupportedKind, format)
		}
		addr, hints, err := addressFromQuery(c, event.KindPublicationIndex)
		if err != nil {
			return err
		}
		relays := d.Orchestrator.EffectiveRelays(relaysFromQuery(c), hints, addr.Kind)
		content, root, err := d.buildDocument(c, addr, relays, c.QueryParam("refresh") == "1")
		if err != nil {
			return err
		}
		embedded := media.EmbedWithSizeCeiling(c.Request().Context(), d.HTTPClient, content, 50*1024*1024)

		derivedKey := hashKey(embedded) + ":" + format
		if v, ok := d.Orchestrator.Cache.Get(cache.NsDerivedFile, derivedKey, d.Orchestrator.Cache.DefaultTTL(cache.NsDerivedFile)); ok {
			return c.Blob(http.StatusOK, "application/octet-stream", v.([]byte))
		}

		body, err := d.Renderer.Convert(format, RendererRequest{
			Content: embedded,
			Title:   root.FirstTagValue("title"),
			Author:  d.authorName(c, root),
		})
		if err != nil {
			return err
		}
		d.Orchestrator.Cache.Set(cache.NsDerivedFile, derivedKey, body, nil)
		return c.Blob(http.StatusOK, "application/octet-stream", body)
	}
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (d Deps) handleStatus(c echo.Context) error {
	out := map[string]interface{}{
		"cache": d.Orchestrator.Cache.Stats(),
		"size":  d.Orchestrator.Cache.HumanSize(),
	}
	if d.Pool != nil {
		out["relays"] = d.probeRelays(c)
	}
	return c.JSON(http.StatusOK, out)
}

// probeRelays checks connectivity to every default publication relay in
// parallel, each under the probe's short budget.
func (d Deps) probeRelays(c echo.Context) map[string]bool {
	probes := make(map[string]bool, len(nostraddr.DefaultPublicationRelays))
	var mu sync.Mutex
	group, ctx := errgroup.WithContext(c.Request().Context())
	for _, url := range nostraddr.DefaultPublicationRelays {
		url := url
		group.Go(func() error {
			up := relay.Probe(ctx, d.Pool, url, 2*time.Second)
			mu.Lock()
			probes[url] = up
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return probes
}

func (d Deps) handleClearCache(c echo.Context) error {
	d.Orchestrator.Cache.ClearAll()
	return c.NoContent(http.StatusNoContent)
}

func (d Deps) handleImageProxy(c echo.Context) error {
	target := c.QueryParam("url")
	if target == "" {
		return fmt.Errorf("%w: missing url parameter", common.ErrInvalidAddress)
	}
	key := hashKey(target)
	if v, extra, ok := d.Orchestrator.Cache.GetWithExtra(cache.NsMediaImage, key, d.Orchestrator.Cache.DefaultTTL(cache.NsMediaImage)); ok {
		return c.Blob(http.StatusOK, extra.(string), v.([]byte))
	}

	fetched, err := media.Fetch(c.Request().Context(), d.HTTPClient, target, media.KindImage)
	if err != nil {
		return err
	}
	data, mediaType := media.Recompress(fetched.Data, fetched.MediaType)
	d.Orchestrator.Cache.Set(cache.NsMediaImage, key, data, mediaType)
	return c.Blob(http.StatusOK, mediaType, data)
}
