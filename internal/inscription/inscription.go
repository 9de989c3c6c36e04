// Package inscription parses references to assets on the inscription chain.
//
// A reference is the canonical string form `<64-hex-anchor>i<decimal-index>`,
// e.g. 6fb976ab49dcec017f1e201e84395983204ae1a7c2abf7ced0a85d692e442799i0.
package inscription

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// idSeparator splits the anchor from the index in a reference string.
const idSeparator = "i"

// AnchorSize is the byte length of a reference anchor.
const AnchorSize = 32

// referencePattern is the canonical reference format. Uppercase hex is
// rejected: references are compared as exact strings on chain.
var referencePattern = regexp.MustCompile(`^[a-f0-9]{64}i[0-9]+$`)

// ErrMalformed is returned for input that does not match the canonical
// reference format.
var ErrMalformed = fmt.Errorf("malformed inscription reference")

// Ref is a parsed inscription reference. Immutable once parsed.
type Ref struct {
	Anchor [AnchorSize]byte
	Index  uint32
}

// Parse parses a canonical reference string.
func Parse(s string) (Ref, error) {
	if !referencePattern.MatchString(s) {
		return Ref{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	parts := strings.SplitN(s, idSeparator, 2)
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: index out of range in %q", ErrMalformed, s)
	}

	var ref Ref
	if _, err := hex.Decode(ref.Anchor[:], []byte(parts[0])); err != nil {
		return Ref{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	ref.Index = uint32(index)
	return ref, nil
}

// MustParse parses a reference or panics. For tests and constants.
func MustParse(s string) Ref {
	ref, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// String returns the canonical string form.
func (r Ref) String() string {
	return hex.EncodeToString(r.Anchor[:]) + idSeparator + strconv.FormatUint(uint64(r.Index), 10)
}

// Bytes returns anchor followed by the index as 4 big-endian bytes.
// This is the derivation preimage prefix.
func (r Ref) Bytes() []byte {
	out := make([]byte, AnchorSize+4)
	copy(out, r.Anchor[:])
	binary.BigEndian.PutUint32(out[AnchorSize:], r.Index)
	return out
}
