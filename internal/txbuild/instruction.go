// Package txbuild assembles unsigned retirement transactions. Instructions
// are explicit value objects (program id, tagged account roles, byte
// payload) with one constructor per program, so every byte that reaches
// the wire is visible here.
package txbuild

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID is the compute budget program.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// SPL Token instruction discriminators used by the retirement flows.
const (
	tokenIxCloseAccount    = 9
	tokenIxThawAccount     = 11
	tokenIxTransferChecked = 12
	tokenIxBurnChecked     = 15
)

// Compute budget instruction discriminators.
const (
	computeBudgetIxSetUnitLimit = 2
	computeBudgetIxSetUnitPrice = 3
)

// ataIxCreateIdempotent creates an associated token account if absent.
const ataIxCreateIdempotent = 1

// TokenErrAccountFrozen is the SPL Token custom program error raised when a
// destroy or transfer instruction hits a frozen account ("custom program
// error: 0x11"). The builder exists to make sure real transactions never
// trigger it; the simulator recognizes it when they would.
const TokenErrAccountFrozen = 0x11

// Instruction is a fully-specified program invocation.
type Instruction struct {
	Program solana.PublicKey
	Keys    []*solana.AccountMeta
	Payload []byte
}

// ProgramID implements solana.Instruction.
func (ix Instruction) ProgramID() solana.PublicKey { return ix.Program }

// Accounts implements solana.Instruction.
func (ix Instruction) Accounts() []*solana.AccountMeta { return ix.Keys }

// Data implements solana.Instruction.
func (ix Instruction) Data() ([]byte, error) { return ix.Payload, nil }

// NewSetComputeUnitLimit caps the transaction's compute units.
func NewSetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = computeBudgetIxSetUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return Instruction{Program: ComputeBudgetProgramID, Payload: data}
}

// NewSetComputeUnitPrice sets the priority fee in micro-lamports per unit.
func NewSetComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = computeBudgetIxSetUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{Program: ComputeBudgetProgramID, Payload: data}
}

// NewMemo records payload on chain, anchored by the signer. Riding in the
// same transaction as the destructive instruction means one signature
// covers both the action and the protocol proof.
func NewMemo(payload string, signer solana.PublicKey) Instruction {
	return Instruction{
		Program: solana.MemoProgramID,
		Keys: []*solana.AccountMeta{
			solana.NewAccountMeta(signer, false, true),
		},
		Payload: []byte(payload),
	}
}

// NewThawAccount unfreezes a capability-frozen holding account. Must come
// before the destroy or transfer instruction or the token program rejects
// the transaction with TokenErrAccountFrozen.
func NewThawAccount(account, mint, freezeAuthority solana.PublicKey) Instruction {
	return Instruction{
		Program: solana.TokenProgramID,
		Keys: []*solana.AccountMeta{
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(freezeAuthority, false, true),
		},
		Payload: []byte{tokenIxThawAccount},
	}
}

// NewBurnChecked destroys amount units, reducing mint supply.
func NewBurnChecked(account, mint, owner solana.PublicKey, amount uint64, decimals uint8) Instruction {
	data := make([]byte, 10)
	data[0] = tokenIxBurnChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return Instruction{
		Program: solana.TokenProgramID,
		Keys: []*solana.AccountMeta{
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(mint, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		Payload: data,
	}
}

// NewTransferChecked moves amount units from source to dest.
func NewTransferChecked(source, mint, dest, owner solana.PublicKey, amount uint64, decimals uint8) Instruction {
	data := make([]byte, 10)
	data[0] = tokenIxTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return Instruction{
		Program: solana.TokenProgramID,
		Keys: []*solana.AccountMeta{
			solana.NewAccountMeta(source, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(dest, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		Payload: data,
	}
}

// NewCloseAccount closes an emptied token account, reclaiming its rent
// lamports to dest.
func NewCloseAccount(account, dest, owner solana.PublicKey) Instruction {
	return Instruction{
		Program: solana.TokenProgramID,
		Keys: []*solana.AccountMeta{
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(dest, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		Payload: []byte{tokenIxCloseAccount},
	}
}

// NewCreateATAIdempotent creates owner's associated token account for mint
// if it does not exist. The owner may be off-curve, which is the entire
// point for sink addresses.
func NewCreateATAIdempotent(payer, ata, owner, mint solana.PublicKey) Instruction {
	return Instruction{
		Program: solana.SPLAssociatedTokenAccountProgramID,
		Keys: []*solana.AccountMeta{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		Payload: []byte{ataIxCreateIdempotent},
	}
}
