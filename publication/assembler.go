// Package publication implements the recursive, cycle-safe hierarchy
// builder that resolves a publication index event into an ordered tree of
// its descendants.
package publication

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/event"
)

// Fetcher is the one relay capability the assembler needs: a single
// multiplexer call per level, per reference kind. *relay.Pool satisfies
// this via its Fetch method; tests substitute a fake that needs no network.
type Fetcher interface {
	Fetch(ctx context.Context, filters []event.Filter, relaySet []string, budget time.Duration, earlyExit bool, minResults int) []event.Event
}

// Node is one entry in the assembled hierarchy: an event plus its ordered
// children. Only publication-index events ever have children; every other
// kind is a terminal leaf.
type Node struct {
	Event    event.Event
	Children []Node
}

// reference records one a-tag or e-tag found in an index event's tag list.
// refs is built by a single ordered scan (partitionTags), so iterating it
// replays the source tag order even though a-tags and e-tags are fetched
// independently.
type reference struct {
	isAddress bool
	value     string
	addr      event.Address // decoded a-tag value, zero for e-tags
}

// Build resolves root (which must be a publication index) into its full
// hierarchy against relaySet. The per-root-to-node-path visited set starts
// containing only root.ID and is threaded by value through every recursive
// call — never shared as mutable state across goroutines — so sibling
// branches and concurrent calls from different roots never interfere.
func Build(ctx context.Context, fetcher Fetcher, root event.Event, relaySet []string) Node {
	visited := map[string]struct{}{root.ID: {}}
	children := buildChildren(ctx, fetcher, root, relaySet, visited)
	return Node{Event: root, Children: children}
}

// buildChildren implements steps 2-8 of the assembler algorithm for one
// index event's direct children.
func buildChildren(ctx context.Context, fetcher Fetcher, parent event.Event, relaySet []string, visited map[string]struct{}) []Node {
	refs, addressFilters, eventIDs := partitionTags(parent)
	if len(refs) == 0 {
		return nil
	}

	budget := levelBudget(len(refs))

	var addressResults, idResults []event.Event
	group, groupCtx := errgroup.WithContext(ctx)

	if len(addressFilters) > 0 {
		group.Go(func() error {
			addressResults = fetcher.Fetch(groupCtx, addressFilters, relaySet, budget, false, 0)
			return nil
		})
	}
	if len(eventIDs) > 0 {
		group.Go(func() error {
			filter := event.Filter{IDs: eventIDs}
			idResults = fetcher.Fetch(groupCtx, []event.Filter{filter}, relaySet, budget, false, 0)
			return nil
		})
	}
	_ = group.Wait()

	byAddress := dedupeByAddressRecency(addressResults)
	byID := make(map[string]event.Event, len(idResults))
	for _, ev := range idResults {
		byID[ev.ID] = ev
	}

	// Resolve each reference in its original position, then recurse into
	// sibling index children in parallel.
	type pending struct {
		resolved event.Event
		recurse  bool
	}
	var pendings []pending
	emittedAddresses := make(map[string]bool)

	for _, ref := range refs {
		if !ref.isAddress && ref.value == parent.ID {
			// Self-referential e-tag: silently skipped, never recursed into.
			continue
		}

		var resolved event.Event
		var found bool
		if ref.isAddress {
			// Two a-tags naming the same address collapse to one node.
			if emittedAddresses[ref.addr.String()] {
				continue
			}
			resolved, found = byAddress[ref.addr.String()]
			if found {
				emittedAddresses[ref.addr.String()] = true
			}
		} else {
			resolved, found = byID[ref.value]
		}
		if !found {
			continue
		}

		if _, onPath := visited[resolved.ID]; onPath {
			// Already an ancestor on this root-to-node path; emitting it
			// again would repeat its id along the path.
			continue
		}
		recurse := resolved.IsIndex()
		pendings = append(pendings, pending{resolved: resolved, recurse: recurse})
	}

	nodes := make([]Node, len(pendings))
	childGroup, childCtx := errgroup.WithContext(ctx)
	for i, p := range pendings {
		i, p := i, p
		if !p.recurse {
			nodes[i] = Node{Event: p.resolved}
			continue
		}
		childGroup.Go(func() error {
			branchVisited := cloneVisited(visited)
			branchVisited[p.resolved.ID] = struct{}{}
			grandchildren := buildChildren(childCtx, fetcher, p.resolved, relaySet, branchVisited)
			nodes[i] = Node{Event: p.resolved, Children: grandchildren}
			return nil
		})
	}
	_ = childGroup.Wait()

	return nodes
}

// partitionTags scans an event's tags in order, separating a-tags and
// e-tags into one ordered reference list plus the filter inputs for the two
// multiplexer calls: one (kind, author, #d) filter per decodable a-tag, and
// the flat id list for the single multi-id e-tag filter. a-tags naming a
// kind outside the recognized child kinds are dropped, as are malformed
// ones.
func partitionTags(ev event.Event) (refs []reference, addressFilters []event.Filter, eventIDs []string) {
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "a":
			addr, err := event.ParseAddress(tag[1])
			if err != nil {
				common.Logger.WithField("address", tag[1]).Debug("skipping malformed a-tag reference")
				continue
			}
			if !childKind(addr.Kind) {
				continue
			}
			refs = append(refs, reference{isAddress: true, value: tag[1], addr: addr})
			addressFilters = append(addressFilters, event.Filter{
				Kinds:   []int{addr.Kind},
				Authors: []string{addr.Author},
				DTags:   []string{addr.Discriminator},
			})
		case "e":
			refs = append(refs, reference{isAddress: false, value: tag[1]})
			eventIDs = append(eventIDs, tag[1])
		}
	}
	return refs, addressFilters, eventIDs
}

// childKind reports whether kind can appear as a publication descendant:
// nested indexes, parts, and standalone articles reused as parts.
func childKind(kind int) bool {
	return kind == event.KindPublicationIndex || kind == event.KindPublicationPart || kind == event.KindArticle
}

// dedupeByAddressRecency keeps, for each canonical address among results,
// the event with the greatest created_at.
func dedupeByAddressRecency(results []event.Event) map[string]event.Event {
	best := make(map[string]event.Event, len(results))
	for _, ev := range results {
		addr := ev.Address().String()
		existing, ok := best[addr]
		if !ok || ev.CreatedAt > existing.CreatedAt {
			best[addr] = ev
		}
	}
	return best
}

// cloneVisited copies a visited set by value so a recursive branch can
// extend it without mutating the set any sibling branch holds.
func cloneVisited(visited map[string]struct{}) map[string]struct{} {
	clone := make(map[string]struct{}, len(visited)+1)
	for id := range visited {
		clone[id] = struct{}{}
	}
	return clone
}

// levelBudget implements clamp(children * 0.2s, 5s, 30s).
func levelBudget(childCount int) time.Duration {
	budget := time.Duration(childCount) * 200 * time.Millisecond
	if budget < 5*time.Second {
		return 5 * time.Second
	}
	if budget > 30*time.Second {
		return 30 * time.Second
	}
	return budget
}
