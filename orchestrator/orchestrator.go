// Package orchestrator implements the request orchestrator: the two-level
// cache read-through in front of the relay multiplexer that every public
// endpoint resolves its event data through.
package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/silberengel/epaperpub/cache"
	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/config"
	"github.com/silberengel/epaperpub/event"
	"github.com/silberengel/epaperpub/nostraddr"
	"github.com/silberengel/epaperpub/publication"
	"github.com/silberengel/epaperpub/thread"
)

// Fetcher is the multiplexer capability the orchestrator needs. It is
// exactly publication.Fetcher's shape so a *relay.Pool, or a test fake,
// serves both the orchestrator and the assembler without adaptation.
type Fetcher = publication.Fetcher

// Service ties the cache, relay resolution, and multiplexer together per
// the orchestrator's read-through contract.
type Service struct {
	Cache   *cache.Store
	Fetcher Fetcher
	Relay   config.RelayConfig
}

// New builds a Service from its collaborators.
func New(store *cache.Store, fetcher Fetcher, relayCfg config.RelayConfig) *Service {
	return &Service{Cache: store, Fetcher: fetcher, Relay: relayCfg}
}

// EffectiveRelays applies the full relay-selection precedence for one
// request: an explicit caller override first, then the process-wide
// configured list, then relays carried by the decoded address itself, then
// the kind-based default set. Handlers that decoded an naddr/nevent pass
// its embedded relay hints as decoded; everything else passes nil.
func (s *Service) EffectiveRelays(explicit, decoded []string, kind int) []string {
	if len(explicit) > 0 {
		return explicit
	}
	if len(s.Relay.URLs) > 0 {
		return s.Relay.URLs
	}
	return nostraddr.SelectRelays(nil, decoded, kind)
}

// resolveRelays is EffectiveRelays for call sites with no decoded address
// in hand.
func (s *Service) resolveRelays(explicit []string, kind int) []string {
	return s.EffectiveRelays(explicit, nil, kind)
}

// listKey builds the list-namespace cache key from the fetch limit and a
// hash of the relay set, so a custom relays= override never serves another
// relay set's cached list.
func listKey(limit int, relays []string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(relays, ",")))
	return fmt.Sprintf("limit=%d;relays=%08x", limit, h.Sum32())
}

// listBudget implements the list sizing policy: clamp(L/200 * 1s, 5s, 30s).
func listBudget(limit int) time.Duration {
	budget := time.Duration(limit) * time.Second / 200
	if budget < 5*time.Second {
		return 5 * time.Second
	}
	if budget > 30*time.Second {
		return 30 * time.Second
	}
	return budget
}

// GetDetail resolves a single replaceable event by canonical address: the
// detail cache, then a stale-tolerant probe of the list cache, then the
// network with the single-item budget and limit-1 early exit. refresh
// bypasses both cache probes.
func (s *Service) GetDetail(ctx context.Context, addr event.Address, explicitRelays []string, refresh bool) (event.Event, error) {
	listNs, detailNs := namespacesFor(addr.Kind)

	if !refresh {
		if v, ok := s.Cache.Get(detailNs, addr.String(), s.Cache.DefaultTTL(detailNs)); ok {
			return v.(event.Event), nil
		}
		if _, v, ok := s.Cache.Single(listNs, cache.Forever); ok {
			for _, ev := range v.([]event.Event) {
				if ev.Address() == addr {
					s.Cache.Set(detailNs, addr.String(), ev, nil)
					return ev, nil
				}
			}
		}
	}

	relays := s.resolveRelays(explicitRelays, addr.Kind)
	filter := event.Filter{Kinds: []int{addr.Kind}, Authors: []string{addr.Author}, DTags: []string{addr.Discriminator}, Limit: 1}
	results := s.Fetcher.Fetch(ctx, []event.Filter{filter}, relays, s.Relay.DetailBudget, true, 1)

	var best event.Event
	var found bool
	for _, ev := range results {
		if ev.Address() != addr {
			continue
		}
		if !found || ev.CreatedAt > best.CreatedAt {
			best = ev
			found = true
		}
	}
	if !found {
		return event.Event{}, common.ErrNotFound
	}

	s.Cache.Set(detailNs, addr.String(), best, nil)
	s.mergeIntoList(listNs, best)
	return best, nil
}

// List resolves the top-level event list for kind (publications or
// articles), honoring the list cache's ordinary TTL. The list namespace is
// keyed by fetch limit and relay set; its single-slot cap means a key
// change simply displaces the previous list.
func (s *Service) List(ctx context.Context, kind int, explicitRelays []string) ([]event.Event, error) {
	listNs, _ := namespacesFor(kind)
	limit := s.Relay.ListLimit
	relays := s.resolveRelays(explicitRelays, kind)
	key := listKey(limit, relays)

	if v, ok := s.Cache.Get(listNs, key, s.Cache.DefaultTTL(listNs)); ok {
		return topLevel(v.([]event.Event)), nil
	}

	results := s.fetchList(ctx, kind, relays, limit)
	deduped := dedupeLatestByAddress(results)
	s.Cache.Set(listNs, key, deduped, nil)
	return topLevel(deduped), nil
}

// ListHighlights resolves the highlight list. Highlights are flat leaf
// events: no top-level filtering applies, and the namespace is a bounded
// map rather than a single slot, so differently-keyed lists coexist.
func (s *Service) ListHighlights(ctx context.Context, explicitRelays []string) ([]event.Event, error) {
	limit := s.Relay.ListLimit
	relays := s.resolveRelays(explicitRelays, event.KindHighlight)
	key := listKey(limit, relays)

	if v, ok := s.Cache.Get(cache.NsListHighlights, key, s.Cache.DefaultTTL(cache.NsListHighlights)); ok {
		return v.([]event.Event), nil
	}

	results := s.fetchList(ctx, event.KindHighlight, relays, limit)
	s.Cache.Set(cache.NsListHighlights, key, results, nil)
	return results, nil
}

// fetchList issues one list-shaped multiplexer call: limit-hinted filter,
// the clamped list budget, and early exit at half the limit for lists small
// enough that a partial result is representative.
func (s *Service) fetchList(ctx context.Context, kind int, relays []string, limit int) []event.Event {
	filter := event.Filter{Kinds: []int{kind}, Limit: limit}
	earlyExit := limit <= 1000
	return s.Fetcher.Fetch(ctx, []event.Filter{filter}, relays, listBudget(limit), earlyExit, limit/2)
}

// Search filters the cached (or freshly fetched) list for kind by a
// free-text query, trying the exact normalization pass first and the fuzzy
// pass only when exact matching finds nothing.
func (s *Service) Search(ctx context.Context, kind int, query string, explicitRelays []string) ([]event.Event, error) {
	relays := s.resolveRelays(explicitRelays, kind)
	key := nostraddr.NormalizeExact(query) + "|" + listKey(s.Relay.ListLimit, relays)

	if v, ok := s.Cache.Get(cache.NsSearch, key, s.Cache.DefaultTTL(cache.NsSearch)); ok {
		return v.([]event.Event), nil
	}

	list, err := s.List(ctx, kind, explicitRelays)
	if err != nil {
		return nil, err
	}

	matched := matchQuery(list, query, nostraddr.NormalizeExact)
	if len(matched) == 0 {
		matched = matchQuery(list, query, nostraddr.NormalizeFuzzy)
	}

	s.Cache.Set(cache.NsSearch, key, matched, nil)
	return matched, nil
}

func matchQuery(events []event.Event, query string, normalize func(string) string) []event.Event {
	needle := normalize(query)
	if needle == "" {
		return events
	}
	var out []event.Event
	for _, ev := range events {
		haystack := normalize(ev.FirstTagValue("title") + " " + ev.Content)
		if strings.Contains(haystack, needle) {
			out = append(out, ev)
		}
	}
	return out
}

// ResolveHandle looks up a profile by its handle string: profile:handle
// first, then profile:event after decoding the handle into a pubkey, then
// the network with the short profile budget.
func (s *Service) ResolveHandle(ctx context.Context, handle string, explicitRelays []string) (event.Event, error) {
	if v, ok := s.Cache.Get(cache.NsProfileHandle, handle, s.Cache.DefaultTTL(cache.NsProfileHandle)); ok {
		return v.(event.Event), nil
	}

	pubkey := handle
	if decoded, err := nostraddr.Decode(handle); err == nil && decoded.PubKey != "" {
		pubkey = decoded.PubKey
	}

	if v, ok := s.Cache.Get(cache.NsProfileEvent, pubkey, s.Cache.DefaultTTL(cache.NsProfileEvent)); ok {
		ev := v.(event.Event)
		s.Cache.Set(cache.NsProfileHandle, handle, ev, nil)
		return ev, nil
	}

	relays := s.resolveRelays(explicitRelays, event.KindProfile)
	filter := event.Filter{Kinds: []int{event.KindProfile}, Authors: []string{pubkey}, Limit: 1}
	results := s.Fetcher.Fetch(ctx, []event.Filter{filter}, relays, s.Relay.ProfileBudget, true, 1)

	var best event.Event
	var found bool
	for _, ev := range results {
		if !found || ev.CreatedAt > best.CreatedAt {
			best = ev
			found = true
		}
	}
	if !found {
		return event.Event{}, common.ErrNotFound
	}

	s.Cache.Set(cache.NsProfileEvent, pubkey, best, nil)
	s.Cache.Set(cache.NsProfileHandle, handle, best, nil)
	return best, nil
}

// GetHierarchy resolves root's full publication hierarchy, cached under the
// hierarchy namespace by the root's canonical address.
func (s *Service) GetHierarchy(ctx context.Context, root event.Event, explicitRelays []string) publication.Node {
	key := root.Address().String()
	if v, ok := s.Cache.Get(cache.NsHierarchy, key, s.Cache.DefaultTTL(cache.NsHierarchy)); ok {
		return v.(publication.Node)
	}

	relays := s.resolveRelays(explicitRelays, root.Kind)
	node := publication.Build(ctx, s.Fetcher, root, relays)
	s.Cache.Set(cache.NsHierarchy, key, node, nil)
	return node
}

// GetComments resolves the comment thread rooted at rootAddr, cached under
// the comments namespace.
func (s *Service) GetComments(ctx context.Context, rootAddr event.Address, explicitRelays []string) []*thread.Node {
	key := rootAddr.String()
	if v, ok := s.Cache.Get(cache.NsComments, key, s.Cache.DefaultTTL(cache.NsComments)); ok {
		return v.([]*thread.Node)
	}

	relays := s.resolveRelays(explicitRelays, event.KindComment)
	filter := event.Filter{Kinds: []int{event.KindComment}, ATags: []string{rootAddr.String()}}
	results := s.Fetcher.Fetch(ctx, []event.Filter{filter}, relays, listBudget(s.Relay.ListLimit), false, 0)

	roots := thread.Build(results)
	s.Cache.Set(cache.NsComments, key, roots, nil)
	return roots
}

func namespacesFor(kind int) (listNs, detailNs string) {
	if nostraddr.IsArticleKind(kind) {
		return cache.NsListArticles, cache.NsDetailArticle
	}
	return cache.NsListPublications, cache.NsDetailPublication
}

// mergeIntoList folds ev into the cached list slot, deduping by address and
// keeping whichever copy has the greatest created_at. With nothing cached
// there is nothing to keep coherent, so the slot stays empty.
func (s *Service) mergeIntoList(listNs string, ev event.Event) {
	key, v, ok := s.Cache.Single(listNs, cache.Forever)
	if !ok {
		return
	}
	list := v.([]event.Event)
	merged := dedupeLatestByAddress(append(append([]event.Event{}, list...), ev))
	s.Cache.Set(listNs, key, merged, nil)
}

// dedupeLatestByAddress keeps, per canonical address, the event with the
// greatest created_at.
func dedupeLatestByAddress(events []event.Event) []event.Event {
	best := make(map[event.Address]event.Event, len(events))
	order := make([]event.Address, 0, len(events))
	for _, ev := range events {
		addr := ev.Address()
		existing, ok := best[addr]
		if !ok {
			order = append(order, addr)
		}
		if !ok || ev.CreatedAt > existing.CreatedAt {
			best[addr] = ev
		}
	}
	out := make([]event.Event, 0, len(order))
	for _, addr := range order {
		out = append(out, best[addr])
	}
	return out
}

// topLevel implements the list top-level filter: a publication P is
// top-level if no other event in the same response refers to it by
// canonical address (a-tag) or event id (e-tag).
func topLevel(events []event.Event) []event.Event {
	referenced := make(map[string]bool, len(events))
	for _, ev := range events {
		for _, tag := range ev.TagsNamed("a") {
			if len(tag) >= 2 {
				referenced[tag[1]] = true
			}
		}
		for _, tag := range ev.TagsNamed("e") {
			if len(tag) >= 2 {
				referenced[tag[1]] = true
			}
		}
	}

	out := make([]event.Event, 0, len(events))
	for _, ev := range events {
		if referenced[ev.Address().String()] || referenced[ev.ID] {
			continue
		}
		out = append(out, ev)
	}
	return out
}
