package derive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/ordbridge/teleburnd/internal/inscription"
)

const sampleRef = "6fb976ab49dcec017f1e201e84395983204ae1a7c2abf7ced0a85d692e442799i0"

func randomRef(t *testing.T, index uint32) inscription.Ref {
	t.Helper()
	var anchor [32]byte
	if _, err := rand.Read(anchor[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	ref, err := inscription.Parse(fmt.Sprintf("%si%d", hex.EncodeToString(anchor[:]), index))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ref
}

func TestDeriveDeterministic(t *testing.T) {
	ref := inscription.MustParse(sampleRef)

	a, err := Derive(ref)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(ref)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !a.Address.Equals(b.Address) {
		t.Fatalf("derivation not deterministic: %s vs %s", a.Address, b.Address)
	}
	if a.Iterations != b.Iterations {
		t.Errorf("iteration count not deterministic: %d vs %d", a.Iterations, b.Iterations)
	}
}

func TestDeriveAlwaysOffCurve(t *testing.T) {
	const n = 10000
	for i := 0; i < n; i++ {
		ref := randomRef(t, uint32(i))
		res, err := Derive(ref)
		if err != nil {
			t.Fatalf("derive %s: %v", ref, err)
		}
		if res.Address.IsOnCurve() {
			t.Fatalf("derived address is on curve for %s: %s", ref, res.Address)
		}
	}
}

func TestDeriveDistinct(t *testing.T) {
	seen := make(map[solana.PublicKey]inscription.Ref, 2048)
	for i := 0; i < 2048; i++ {
		ref := randomRef(t, 0)
		res, err := Derive(ref)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if prev, dup := seen[res.Address]; dup {
			t.Fatalf("collision: %s and %s both derive %s", prev, ref, res.Address)
		}
		seen[res.Address] = ref
	}
}

func TestIndexChangesAddress(t *testing.T) {
	base := inscription.MustParse(sampleRef)
	other := base
	other.Index = 1

	a, err := Derive(base)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(other)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a.Address.Equals(b.Address) {
		t.Error("index must contribute to the derived address")
	}
}

func TestDomainSeparation(t *testing.T) {
	ref := inscription.MustParse(sampleRef)

	res, err := Derive(ref)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	// Same preimage without the salt must not produce the same address
	// chain, even if the unsalted hash happens to be off-curve.
	unsalted := sha256.Sum256(ref.Bytes())
	if res.Address.Equals(solana.PublicKeyFromBytes(unsalted[:])) {
		t.Error("salted derivation must differ from unsalted hash")
	}
}

func TestVerifySink(t *testing.T) {
	ref := inscription.MustParse(sampleRef)
	res, err := Derive(ref)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	ok, err := VerifySink(ref, res.Address)
	if err != nil || !ok {
		t.Fatalf("expected verification to pass, ok=%v err=%v", ok, err)
	}

	ok, err = VerifySink(ref, solana.PublicKey{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("zero address must not verify")
	}
}

func TestDeriveStringRejectsMalformed(t *testing.T) {
	if _, err := DeriveString("not-a-reference"); err == nil {
		t.Fatal("expected validation error")
	}
}
