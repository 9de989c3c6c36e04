// Package derive turns an inscription reference into a sink address: a
// 32-byte value that is not a point on the ed25519 curve, so no private key
// can ever exist for it. Tokens transferred there are permanently stranded.
package derive

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/ordbridge/teleburnd/internal/inscription"
)

// salt domain-separates sink derivation from any other SHA-256 use of the
// same reference bytes.
var salt = []byte("teleburn/v1")

// maxIterations bounds the off-curve search. Roughly half of all candidates
// are off-curve, so hitting the cap means the hash function is broken, not
// that we were unlucky.
const maxIterations = 256

// ErrExhausted means the off-curve search hit its iteration cap. This is a
// fatal implementation bug and must never be treated as a retryable failure.
var ErrExhausted = errors.New("sink derivation exhausted iteration cap")

// Result carries a derived sink address and how it was found.
type Result struct {
	Address    solana.PublicKey
	Iterations int
}

// Derive deterministically derives the sink address for ref.
// It is pure: same reference, same address, no side effects.
func Derive(ref inscription.Ref) (Result, error) {
	candidate := sha256.Sum256(append(ref.Bytes(), salt...))

	for i := 0; i < maxIterations; i++ {
		pk := solana.PublicKeyFromBytes(candidate[:])
		if !pk.IsOnCurve() {
			return Result{Address: pk, Iterations: i + 1}, nil
		}
		candidate = sha256.Sum256(append(candidate[:], 0x00))
	}
	return Result{}, fmt.Errorf("%w (ref %s)", ErrExhausted, ref)
}

// DeriveString parses and derives in one step.
func DeriveString(id string) (Result, error) {
	ref, err := inscription.Parse(id)
	if err != nil {
		return Result{}, err
	}
	return Derive(ref)
}

// VerifySink re-derives the sink for ref and reports whether it matches addr.
func VerifySink(ref inscription.Ref, addr solana.PublicKey) (bool, error) {
	res, err := Derive(ref)
	if err != nil {
		return false, err
	}
	return res.Address.Equals(addr), nil
}
