package token

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SPL account layout sizes.
const (
	MintAccountSize  = 82
	TokenAccountSize = 165
)

// Token account state byte values.
const (
	accountStateUninitialized = 0
	accountStateInitialized   = 1
	accountStateFrozen        = 2
)

// Metaplex token standard values, as declared in the metadata account.
type MetaStandard uint8

const (
	StandardNonFungible             MetaStandard = 0
	StandardFungibleAsset           MetaStandard = 1
	StandardFungible                MetaStandard = 2
	StandardNonFungibleEdition      MetaStandard = 3
	StandardProgrammableNonFungible MetaStandard = 4
)

// RawMint is the decoded 82-byte SPL mint layout. Token-2022 mints carry
// extension bytes after the base layout; the base fields decode the same.
type RawMint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	Initialized     bool
	FreezeAuthority *solana.PublicKey
}

// ParseMint decodes the SPL mint account layout.
func ParseMint(data []byte) (RawMint, error) {
	if len(data) < MintAccountSize {
		return RawMint{}, fmt.Errorf("mint account too short: %d bytes", len(data))
	}

	var m RawMint
	m.MintAuthority = parseCOptionKey(data[0:36])
	m.Supply = binary.LittleEndian.Uint64(data[36:44])
	m.Decimals = data[44]
	m.Initialized = data[45] != 0
	m.FreezeAuthority = parseCOptionKey(data[46:82])
	return m, nil
}

// RawTokenAccount is the decoded 165-byte SPL token account layout.
type RawTokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
	Frozen bool
}

// ParseTokenAccount decodes the SPL token account layout.
func ParseTokenAccount(data []byte) (RawTokenAccount, error) {
	if len(data) < TokenAccountSize {
		return RawTokenAccount{}, fmt.Errorf("token account too short: %d bytes", len(data))
	}

	var a RawTokenAccount
	a.Mint = solana.PublicKeyFromBytes(data[0:32])
	a.Owner = solana.PublicKeyFromBytes(data[32:64])
	a.Amount = binary.LittleEndian.Uint64(data[64:72])

	switch data[108] {
	case accountStateUninitialized:
		return RawTokenAccount{}, fmt.Errorf("token account uninitialized")
	case accountStateFrozen:
		a.Frozen = true
	}
	return a, nil
}

// parseCOptionKey decodes a 36-byte COption<Pubkey>: 4-byte tag + 32-byte key.
func parseCOptionKey(data []byte) *solana.PublicKey {
	if binary.LittleEndian.Uint32(data[0:4]) == 0 {
		return nil
	}
	pk := solana.PublicKeyFromBytes(data[4:36])
	return &pk
}

// ParseMetadataStandard walks the borsh-encoded Metaplex metadata account
// just far enough to reach the token_standard field. Returns ok=false when
// the field is absent or the account cannot be walked that far; callers
// treat that as "no declared standard", not as an error.
func ParseMetadataStandard(data []byte) (MetaStandard, bool) {
	// key(1) + update_authority(32) + mint(32)
	off := 1 + 32 + 32

	// name, symbol, uri: borsh strings (u32 length prefix)
	for i := 0; i < 3; i++ {
		n, next, ok := borshString(data, off)
		if !ok {
			return 0, false
		}
		_ = n
		off = next
	}

	// seller_fee_basis_points u16
	if off+2 > len(data) {
		return 0, false
	}
	off += 2

	// creators Option<Vec<Creator>>, Creator = pubkey(32)+verified(1)+share(1)
	opt, off, ok := borshOption(data, off)
	if !ok {
		return 0, false
	}
	if opt {
		if off+4 > len(data) {
			return 0, false
		}
		count := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		need := int(count) * 34
		if count > 16 || off+need > len(data) {
			return 0, false
		}
		off += need
	}

	// primary_sale_happened(1) + is_mutable(1)
	if off+2 > len(data) {
		return 0, false
	}
	off += 2

	// edition_nonce Option<u8>
	opt, off, ok = borshOption(data, off)
	if !ok {
		return 0, false
	}
	if opt {
		if off+1 > len(data) {
			return 0, false
		}
		off++
	}

	// token_standard Option<u8>
	opt, off, ok = borshOption(data, off)
	if !ok || !opt {
		return 0, false
	}
	if off+1 > len(data) {
		return 0, false
	}
	return MetaStandard(data[off]), true
}

func borshString(data []byte, off int) (string, int, bool) {
	if off+4 > len(data) {
		return "", 0, false
	}
	n := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if n < 0 || n > 1024 || off+n > len(data) {
		return "", 0, false
	}
	return string(data[off : off+n]), off + n, true
}

func borshOption(data []byte, off int) (bool, int, bool) {
	if off+1 > len(data) {
		return false, 0, false
	}
	return data[off] != 0, off + 1, true
}
