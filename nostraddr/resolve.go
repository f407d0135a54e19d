package nostraddr

import "github.com/silberengel/epaperpub/event"

// Default relay sets, used when neither the caller nor the decoded address
// supplies one.
var (
	DefaultPublicationRelays = []string{
		"wss://nostr.land",
		"wss://thecitadel.nostr1.com",
		"wss://nostr.wine",
		"wss://orly-relay.imwald.eu",
	}
	DefaultArticleRelays = []string{
		"wss://theforest.nostr1.com",
		"wss://nostr.land",
		"wss://thecitadel.nostr1.com",
		"wss://nostr.wine",
	}
)

// IsPublicationKind reports whether kind belongs to the publication family
// (index or part).
func IsPublicationKind(kind int) bool {
	return kind == event.KindPublicationIndex || kind == event.KindPublicationPart
}

// IsArticleKind reports whether kind is the standalone-article kind.
func IsArticleKind(kind int) bool {
	return kind == event.KindArticle
}

// SelectRelays applies the resolver's relay-selection precedence: an
// explicit caller-supplied list wins; otherwise relays carried by the
// decoded address; otherwise the default set for the address's kind.
func SelectRelays(explicit []string, decoded []string, kind int) []string {
	if len(explicit) > 0 {
		return explicit
	}
	if len(decoded) > 0 {
		return decoded
	}
	if IsArticleKind(kind) {
		return DefaultArticleRelays
	}
	return DefaultPublicationRelays
}
