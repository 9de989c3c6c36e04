package memo

import (
	"encoding/json"
	"fmt"

	"github.com/ordbridge/teleburnd/internal/inscription"
)

// PointerRecord is the flat key/value record linking a retired token back to
// its inscription. The same shape is produced externally on the inscription
// chain; here it is emitted as the optional metadata-pointer memo and parsed
// back during verification.
type PointerRecord struct {
	Protocol  string `json:"p"`
	Op        string `json:"op"`
	Version   int    `json:"v"`
	Mint      string `json:"mint"`
	Reference string `json:"ref"`
}

const (
	pointerProtocol = "teleburn"
	pointerOp       = "pointer"
	pointerVersion  = 1
)

// EncodePointer returns the pointer record memo for mint and ref.
func EncodePointer(mint string, ref inscription.Ref) (string, error) {
	raw, err := json.Marshal(PointerRecord{
		Protocol:  pointerProtocol,
		Op:        pointerOp,
		Version:   pointerVersion,
		Mint:      mint,
		Reference: ref.String(),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodePointer parses a pointer record memo.
func DecodePointer(raw string) (PointerRecord, error) {
	var rec PointerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return PointerRecord{}, fmt.Errorf("%w: %v", ErrNotATeleburnMemo, err)
	}
	if rec.Protocol != pointerProtocol || rec.Op != pointerOp {
		return PointerRecord{}, fmt.Errorf("%w: not a pointer record", ErrNotATeleburnMemo)
	}
	if _, err := inscription.Parse(rec.Reference); err != nil {
		return PointerRecord{}, fmt.Errorf("%w: pointer record with bad reference: %v", ErrNotATeleburnMemo, err)
	}
	return rec, nil
}
