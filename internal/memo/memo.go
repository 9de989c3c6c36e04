// Package memo encodes and decodes the teleburn protocol reference carried
// in transaction memos.
//
// The write path emits only the canonical form. The read path additionally
// accepts two legacy shapes that exist in on-chain history; chain history is
// immutable, so legacy decoding has no sunset.
package memo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ordbridge/teleburnd/internal/inscription"
)

// CanonicalPrefix is the wire prefix of the canonical memo:
// "teleburn:" + <64-hex-anchor>i<decimal-index>, exact UTF-8 bytes.
const CanonicalPrefix = "teleburn:"

// legacyPrefix is the short prefix emitted by early clients. Read-only.
const legacyPrefix = "tb1:"

// ErrNotATeleburnMemo is returned when input matches no known memo shape.
var ErrNotATeleburnMemo = errors.New("not a teleburn memo")

// Kind identifies which shape a memo was decoded from.
type Kind int

const (
	KindCanonical Kind = iota
	KindLegacyPrefixed
	KindLegacyJSON
)

func (k Kind) String() string {
	switch k {
	case KindCanonical:
		return "canonical"
	case KindLegacyPrefixed:
		return "legacy-prefixed"
	case KindLegacyJSON:
		return "legacy-json"
	}
	return "unknown"
}

// Memo is a decoded teleburn memo. Exactly one shape matched; the reference
// is the payload either way.
type Memo struct {
	Kind Kind
	Ref  inscription.Ref

	// Legacy JSON extras, advisory only. The chain's own recorded position
	// is authoritative; a caller-supplied timestamp is just a hint.
	Mint      string
	MediaHash string
	Timestamp int64
}

// legacyRecord is the structured JSON shape. Early clients disagreed on the
// field name for the reference, so both are accepted.
type legacyRecord struct {
	Standard    string `json:"standard"`
	Version     int    `json:"version"`
	Action      string `json:"action"`
	Reference   string `json:"reference"`
	Inscription string `json:"inscription"`
	Mint        string `json:"mint"`
	MediaHash   string `json:"mediaHash"`
	Timestamp   int64  `json:"timestamp"`
}

// Encode returns the canonical memo string for ref.
func Encode(ref inscription.Ref) string {
	return CanonicalPrefix + ref.String()
}

// Decode tries canonical, then legacy-prefixed, then legacy JSON, in that
// order; the first shape that matches wins.
func Decode(raw string) (Memo, error) {
	if rest, ok := strings.CutPrefix(raw, CanonicalPrefix); ok {
		ref, err := inscription.Parse(rest)
		if err != nil {
			return Memo{}, fmt.Errorf("%w: canonical prefix with bad reference: %v", ErrNotATeleburnMemo, err)
		}
		return Memo{Kind: KindCanonical, Ref: ref}, nil
	}

	if rest, ok := strings.CutPrefix(raw, legacyPrefix); ok {
		ref, err := inscription.Parse(rest)
		if err != nil {
			return Memo{}, fmt.Errorf("%w: legacy prefix with bad reference: %v", ErrNotATeleburnMemo, err)
		}
		return Memo{Kind: KindLegacyPrefixed, Ref: ref}, nil
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var rec legacyRecord
		if err := json.Unmarshal([]byte(trimmed), &rec); err == nil && rec.Standard == "teleburn" {
			refStr := rec.Reference
			if refStr == "" {
				refStr = rec.Inscription
			}
			ref, err := inscription.Parse(refStr)
			if err != nil {
				return Memo{}, fmt.Errorf("%w: legacy record with bad reference: %v", ErrNotATeleburnMemo, err)
			}
			return Memo{
				Kind:      KindLegacyJSON,
				Ref:       ref,
				Mint:      rec.Mint,
				MediaHash: rec.MediaHash,
				Timestamp: rec.Timestamp,
			}, nil
		}
	}

	return Memo{}, fmt.Errorf("%w: %.60q", ErrNotATeleburnMemo, raw)
}
