// Package nostraddr decodes the bech32-like address identifiers used to
// name events and publications, and applies the relay-selection precedence
// rules and search-query normalization that go with them.
package nostraddr

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"

	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/event"
)

// Variant identifies which of the four recognized address shapes a decoded
// string turned out to be.
type Variant int

const (
	VariantNpub Variant = iota
	VariantNote
	VariantNevent
	VariantNaddr
)

// TLV type bytes per the nevent/naddr encoding.
const (
	tlvSpecial = 0
	tlvRelay   = 1
	tlvAuthor  = 2
	tlvKind    = 3
)

// Decoded holds whichever fields are meaningful for the variant that was
// decoded; callers should branch on Variant before reading the rest.
type Decoded struct {
	Variant       Variant
	PubKey        string
	EventID       string
	Kind          int
	Discriminator string
	Relays        []string
}

// Decode parses npub/note/nevent/naddr bech32 strings.
func Decode(addr string) (Decoded, error) {
	// nevent/naddr strings routinely exceed the 90-character limit that
	// bech32.Decode enforces, so the length-unlimited decoder is used.
	hrp, data5, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", common.ErrInvalidAddress, err)
	}

	data, err := bech32.ConvertBits(data5, 5, 8, false)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: bit conversion: %v", common.ErrInvalidAddress, err)
	}

	switch hrp {
	case "npub":
		if len(data) != 32 {
			return Decoded{}, fmt.Errorf("%w: npub must decode to 32 bytes, got %d", common.ErrInvalidAddress, len(data))
		}
		return Decoded{Variant: VariantNpub, PubKey: hex.EncodeToString(data)}, nil

	case "note":
		if len(data) != 32 {
			return Decoded{}, fmt.Errorf("%w: note must decode to 32 bytes, got %d", common.ErrInvalidAddress, len(data))
		}
		return Decoded{Variant: VariantNote, EventID: hex.EncodeToString(data)}, nil

	case "nevent":
		d, err := decodeTLV(data)
		if err != nil {
			return Decoded{}, fmt.Errorf("%w: nevent: %v", common.ErrInvalidAddress, err)
		}
		if d.EventID == "" {
			return Decoded{}, fmt.Errorf("%w: nevent missing special (event id) field", common.ErrInvalidAddress)
		}
		d.Variant = VariantNevent
		return d, nil

	case "naddr":
		d, err := decodeTLV(data)
		if err != nil {
			return Decoded{}, fmt.Errorf("%w: naddr: %v", common.ErrInvalidAddress, err)
		}
		if d.PubKey == "" {
			return Decoded{}, fmt.Errorf("%w: naddr missing author field", common.ErrInvalidAddress)
		}
		if d.Discriminator == "" && d.EventID != "" {
			// A 32-byte special field is still the d-tag for naddr.
			raw, _ := hex.DecodeString(d.EventID)
			d.Discriminator, d.EventID = string(raw), ""
		}
		d.Variant = VariantNaddr
		return d, nil

	default:
		return Decoded{}, fmt.Errorf("%w: unrecognized prefix %q", common.ErrInvalidAddress, hrp)
	}
}

// decodeTLV reads the (type, length, value) sequence shared by nevent and
// naddr. The "special" field is the event id for nevent and the
// d-tag discriminator string for naddr; the caller disambiguates by HRP,
// so this function just records whichever shape it saw.
func decodeTLV(data []byte) (Decoded, error) {
	var d Decoded
	for i := 0; i+2 <= len(data); {
		typ := data[i]
		length := int(data[i+1])
		start := i + 2
		end := start + length
		if end > len(data) {
			return Decoded{}, fmt.Errorf("truncated TLV value for type %d", typ)
		}
		value := data[start:end]

		switch typ {
		case tlvSpecial:
			if length == 32 {
				d.EventID = hex.EncodeToString(value)
			} else {
				d.Discriminator = string(value)
			}
		case tlvRelay:
			d.Relays = append(d.Relays, string(value))
		case tlvAuthor:
			if length != 32 {
				return Decoded{}, fmt.Errorf("author field must be 32 bytes, got %d", length)
			}
			d.PubKey = hex.EncodeToString(value)
		case tlvKind:
			if length != 4 {
				return Decoded{}, fmt.Errorf("kind field must be 4 bytes, got %d", length)
			}
			d.Kind = int(binary.BigEndian.Uint32(value))
		}

		i = end
	}
	return d, nil
}

// EncodeNpub encodes a 32-byte hex pubkey as npub1....
func EncodeNpub(pubkeyHex string) (string, error) {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: pubkey must be 32 bytes hex", common.ErrInvalidAddress)
	}
	data5, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("npub", data5)
}

// EncodeNote encodes a 32-byte hex event id as note1....
func EncodeNote(eventIDHex string) (string, error) {
	raw, err := hex.DecodeString(eventIDHex)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: event id must be 32 bytes hex", common.ErrInvalidAddress)
	}
	data5, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("note", data5)
}

// EncodeNaddr encodes a canonical address plus optional relay hints as
// naddr1....
func EncodeNaddr(addr event.Address, relays []string) (string, error) {
	authorRaw, err := hex.DecodeString(addr.Author)
	if err != nil || len(authorRaw) != 32 {
		return "", fmt.Errorf("%w: author must be 32 bytes hex", common.ErrInvalidAddress)
	}

	var buf []byte
	buf = appendTLV(buf, tlvSpecial, []byte(addr.Discriminator))
	for _, r := range relays {
		buf = appendTLV(buf, tlvRelay, []byte(r))
	}
	buf = appendTLV(buf, tlvAuthor, authorRaw)
	kindBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(kindBytes, uint32(addr.Kind))
	buf = appendTLV(buf, tlvKind, kindBytes)

	data5, err := bech32.ConvertBits(buf, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("naddr", data5)
}

func appendTLV(buf []byte, typ byte, value []byte) []byte {
	buf = append(buf, typ, byte(len(value)))
	return append(buf, value...)
}
