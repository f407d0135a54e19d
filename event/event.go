// Package event defines the single wire record the aggregation engine
// operates on, matching the design note that a systems rewrite should model
// events as one record with a kind tag plus an untyped tag list, switching
// on kind only at business-logic boundaries.
package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Recognized kinds, by role rather than by any particular relay
// implementation's numbering scheme.
const (
	KindProfile          = 0
	KindComment          = 1111
	KindHighlight        = 9802
	KindArticle          = 30023
	KindPublicationIndex = 30040
	KindPublicationPart  = 30041
)

// Event is an immutable signed record as delivered by a relay.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// IsIndex reports whether the event is a publication index, the only kind
// the assembler recurses into.
func (e Event) IsIndex() bool {
	return e.Kind == KindPublicationIndex
}

// Discriminator returns the value of the event's first "d" tag, the empty
// string if it is not a replaceable event.
func (e Event) Discriminator() string {
	return e.FirstTagValue("d")
}

// Address returns the canonical replaceable address for the event.
func (e Event) Address() Address {
	return Address{Kind: e.Kind, Author: e.PubKey, Discriminator: e.Discriminator()}
}

// FirstTagValue returns the first value (index 1) of the first tag named
// name, or "" if no such tag exists.
func (e Event) FirstTagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagsNamed returns every tag in the event whose first element is name, in
// original order.
func (e Event) TagsNamed(name string) [][]string {
	var out [][]string
	for _, tag := range e.Tags {
		if len(tag) >= 1 && tag[0] == name {
			out = append(out, tag)
		}
	}
	return out
}

// Address is the triple (kind, author, discriminator) identifying the
// latest event in a replaceable series.
type Address struct {
	Kind          int
	Author        string
	Discriminator string
}

// String renders the canonical "kind:author:discriminator" form used as an
// a-tag value and as a cache key.
func (a Address) String() string {
	return fmt.Sprintf("%d:%s:%s", a.Kind, a.Author, a.Discriminator)
}

// ParseAddress parses a "kind:author:discriminator" string as found in an
// a-tag value. Everything after the second colon is taken verbatim as the
// discriminator, so discriminators containing colons survive.
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("address %q: want kind:author:discriminator", s)
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return Address{}, fmt.Errorf("address %q: non-numeric kind", s)
	}
	if parts[1] == "" {
		return Address{}, fmt.Errorf("address %q: empty author", s)
	}
	return Address{Kind: kind, Author: parts[1], Discriminator: parts[2]}, nil
}

// Filter describes a relay subscription query. Semantics are passed through
// verbatim by the relay multiplexer, which does not interpret them.
type Filter struct {
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	IDs     []string `json:"ids,omitempty"`
	DTags   []string `json:"#d,omitempty"`
	ATags   []string `json:"#A,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}
