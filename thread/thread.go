// Package thread reconstructs a reply tree from a flat set of threaded
// comment events.
package thread

import (
	"sort"

	"github.com/silberengel/epaperpub/event"
)

// Node is a comment event plus its ordered replies.
type Node struct {
	Event    event.Event
	Children []*Node
}

// Build links events into a reply forest. Each event's parent is the first
// match found by scanning, in strict priority order: a lowercase e-tag, a
// lowercase a-tag, then a lowercase i-tag. A self-match is discarded. Nodes
// with no resolvable parent become roots. The root list and every
// children list are sorted ascending by created_at.
func Build(events []event.Event) []*Node {
	nodes := make(map[string]*Node, len(events))
	order := make([]string, 0, len(events))
	for _, ev := range events {
		nodes[ev.ID] = &Node{Event: ev}
		order = append(order, ev.ID)
	}

	byAddress := make(map[string]*Node, len(events))
	byITag := make(map[string][]*Node)
	for _, id := range order {
		n := nodes[id]
		addr := n.Event.Address()
		if addr.Discriminator != "" {
			byAddress[addr.String()] = n
		}
		// Index both the uppercase "I" (root scope) and lowercase "i"
		// (item) tags, since rule 3 matches a lowercase i-tag against any
		// other event carrying either case of the tag with the same value.
		if iVal := n.Event.FirstTagValue("i"); iVal != "" {
			byITag[iVal] = append(byITag[iVal], n)
		}
		if iVal := n.Event.FirstTagValue("I"); iVal != "" {
			byITag[iVal] = append(byITag[iVal], n)
		}
	}

	var roots []*Node
	for _, id := range order {
		n := nodes[id]
		parent := findParent(n, nodes, byAddress, byITag)
		if parent == nil || parent == n {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortByCreatedAt(roots)
	for _, n := range nodes {
		sortByCreatedAt(n.Children)
	}

	return roots
}

func findParent(n *Node, byID map[string]*Node, byAddress map[string]*Node, byITag map[string][]*Node) *Node {
	if eVal := n.Event.FirstTagValue("e"); eVal != "" {
		if parent, ok := byID[eVal]; ok {
			return parent
		}
	}

	if aVal := n.Event.FirstTagValue("a"); aVal != "" {
		addr, err := event.ParseAddress(aVal)
		if err == nil {
			if parent, ok := byAddress[addr.String()]; ok {
				return parent
			}
		}
		if parent, ok := byID[aVal]; ok {
			return parent
		}
	}

	if iVal := n.Event.FirstTagValue("i"); iVal != "" {
		for _, candidate := range byITag[iVal] {
			if candidate != n {
				return candidate
			}
		}
	}

	return nil
}

func sortByCreatedAt(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Event.CreatedAt < nodes[j].Event.CreatedAt
	})
}
