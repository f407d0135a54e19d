package nostraddr

import (
	"testing"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silberengel/epaperpub/event"
)

const samplePubkey = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"

func TestNpubRoundTrip(t *testing.T) {
	encoded, err := EncodeNpub(samplePubkey)
	require.NoError(t, err)
	assert.True(t, len(encoded) > 5 && encoded[:4] == "npub")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, VariantNpub, decoded.Variant)
	assert.Equal(t, samplePubkey, decoded.PubKey)
}

func TestNoteRoundTrip(t *testing.T) {
	encoded, err := EncodeNote(samplePubkey)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, VariantNote, decoded.Variant)
	assert.Equal(t, samplePubkey, decoded.EventID)
}

func TestNaddrRoundTrip(t *testing.T) {
	addr := event.Address{Kind: 30040, Author: samplePubkey, Discriminator: "my-book"}
	encoded, err := EncodeNaddr(addr, []string{"wss://relay.example.com"})
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, VariantNaddr, decoded.Variant)
	assert.Equal(t, addr.Author, decoded.PubKey)
	assert.Equal(t, addr.Discriminator, decoded.Discriminator)
	assert.Equal(t, addr.Kind, decoded.Kind)
	assert.Equal(t, []string{"wss://relay.example.com"}, decoded.Relays)
}

func TestDecodeRejectsBadAddress(t *testing.T) {
	_, err := Decode("not-bech32-at-all")
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownPrefix(t *testing.T) {
	data5, err := bech32.ConvertBits([]byte("0123456789abcdef0123456789abcdef"), 8, 5, true)
	require.NoError(t, err)
	encoded, err := bech32.Encode("nsomething", data5)
	require.NoError(t, err)

	_, err = Decode(encoded)
	assert.Error(t, err)
}

func TestSelectRelaysPrecedence(t *testing.T) {
	explicit := []string{"wss://explicit"}
	decoded := []string{"wss://decoded"}

	assert.Equal(t, explicit, SelectRelays(explicit, decoded, event.KindArticle))
	assert.Equal(t, decoded, SelectRelays(nil, decoded, event.KindArticle))
	assert.Equal(t, DefaultArticleRelays, SelectRelays(nil, nil, event.KindArticle))
	assert.Equal(t, DefaultPublicationRelays, SelectRelays(nil, nil, event.KindPublicationIndex))
}

func TestIsPublicationAndArticleKind(t *testing.T) {
	assert.True(t, IsPublicationKind(event.KindPublicationIndex))
	assert.True(t, IsPublicationKind(event.KindPublicationPart))
	assert.False(t, IsPublicationKind(event.KindArticle))
	assert.True(t, IsArticleKind(event.KindArticle))
	assert.False(t, IsArticleKind(event.KindPublicationIndex))
}
