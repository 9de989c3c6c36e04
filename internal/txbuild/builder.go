package txbuild

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ordbridge/teleburnd/internal/derive"
	"github.com/ordbridge/teleburnd/internal/inscription"
	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/memo"
	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/internal/token"
	"github.com/ordbridge/teleburnd/pkg/types"
)

// MaxTransactionSize is the wire packet ceiling for a serialized
// transaction, signatures included.
const MaxTransactionSize = 1232

// lamportsPerSignature is the fee fallback when the RPC fee estimate is
// unavailable.
const lamportsPerSignature = 5000

// defaultComputeUnitLimit covers a thaw, a token mutation, an account
// close, and a memo with room to spare.
const defaultComputeUnitLimit = 200_000

// ChainReader supplies the chain context a build needs. Satisfied by
// PoolChain; stubbed in tests.
type ChainReader interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// FeeForMessage estimates the fee for a base64-encoded message. The
	// second return reports whether the estimate is authoritative.
	FeeForMessage(ctx context.Context, msgBase64 string) (uint64, bool, error)
}

// PoolChain adapts the failover pool to ChainReader.
type PoolChain struct {
	Pool *rpc.Pool
}

func (p *PoolChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := p.Pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetLatestBlockhash(ctx, solrpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		hash = res.Value.Blockhash
		return nil
	})
	return hash, err
}

func (p *PoolChain) FeeForMessage(ctx context.Context, msgBase64 string) (uint64, bool, error) {
	var fee uint64
	var ok bool
	err := p.Pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetFeeForMessage(ctx, msgBase64, solrpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		if res.Value != nil {
			fee, ok = *res.Value, true
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return fee, ok, nil
}

// SealParams describes a memo-only binding between a mint and an
// inscription, signed by the holder without destroying anything.
type SealParams struct {
	Payer solana.PublicKey
	Mint  solana.PublicKey
	Ref   inscription.Ref
	// ComputeUnitPrice is an optional priority fee in micro-lamports.
	ComputeUnitPrice uint64
}

// RetireParams describes a full retirement of a single token unit.
type RetireParams struct {
	Payer  solana.PublicKey
	Owner  solana.PublicKey
	Mint   solana.PublicKey
	Ref    inscription.Ref
	Method types.RetirementMethod
	// ComputeUnitPrice is an optional priority fee in micro-lamports.
	ComputeUnitPrice uint64
}

// Built pairs the assembled transaction with the caller-facing summary.
type Built struct {
	Tx     *solana.Transaction
	Result types.BuildResult
}

// Builder assembles unsigned seal and retirement transactions. It walks a
// fixed progression per request: validate the parameters, detect the mint
// variant, pick the variant's flow, then assemble and size-check. Any
// failure aborts the build; nothing oversized or unservable is ever
// returned.
type Builder struct {
	accounts  token.AccountReader
	chain     ChainReader
	unitLimit uint32
}

// NewBuilder creates a builder over the given account and chain readers.
func NewBuilder(accounts token.AccountReader, chain ChainReader) *Builder {
	return &Builder{accounts: accounts, chain: chain, unitLimit: defaultComputeUnitLimit}
}

// BuildSeal assembles a memo-only transaction binding mint to the
// inscription reference. The mint must exist; its variant does not matter
// because nothing is destroyed.
func (b *Builder) BuildSeal(ctx context.Context, p SealParams) (*Built, error) {
	if p.Payer.IsZero() || p.Mint.IsZero() {
		return nil, &ValidationError{Msg: "payer and mint are required"}
	}

	mint, err := b.accounts.DetectMint(ctx, p.Mint)
	if err != nil {
		return nil, err
	}
	if mint.OwnerProgram.IsZero() {
		return nil, &ValidationError{Msg: fmt.Sprintf("mint %s does not exist", p.Mint)}
	}

	instrs := b.prelude(p.ComputeUnitPrice)
	instrs = append(instrs, NewMemo(memo.Encode(p.Ref), p.Payer))

	desc := fmt.Sprintf("seal mint %s to inscription %s (memo only, nothing destroyed)", p.Mint, p.Ref)
	return b.assemble(ctx, p.Payer, instrs, desc)
}

// BuildRetire assembles the retirement transaction for a single token
// unit: an optional thaw for capability-frozen restricted tokens, the
// destroy or transfer-to-sink instructions, the account close, and the
// canonical memo, all in one atomically-committed transaction.
func (b *Builder) BuildRetire(ctx context.Context, p RetireParams) (*Built, error) {
	if p.Payer.IsZero() || p.Owner.IsZero() || p.Mint.IsZero() {
		return nil, &ValidationError{Msg: "payer, owner, and mint are required"}
	}
	if !p.Method.Valid() {
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown retirement method %q", p.Method)}
	}

	mint, err := b.accounts.DetectMint(ctx, p.Mint)
	if err != nil {
		return nil, err
	}
	if mint.Variant == types.VariantUnsupported {
		return nil, &UnsupportedVariantError{Mint: p.Mint.String(), Variant: mint.Variant}
	}
	if mint.Decimals != 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("mint %s has %d decimals; only single-unit zero-decimal tokens are retired", p.Mint, mint.Decimals)}
	}

	holdingAddr, _, err := solana.FindAssociatedTokenAddress(p.Owner, p.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive holding account: %w", err)
	}
	holding, err := b.accounts.Holding(ctx, holdingAddr)
	if err != nil {
		if errors.Is(err, token.ErrAccountNotFound) {
			return nil, &ValidationError{Msg: fmt.Sprintf("owner %s holds no account for mint %s", p.Owner, p.Mint)}
		}
		return nil, err
	}
	if !holding.Mint.Equals(p.Mint) {
		return nil, &ValidationError{Msg: fmt.Sprintf("holding account %s belongs to mint %s, not %s", holdingAddr, holding.Mint, p.Mint)}
	}
	if holding.Amount != 1 {
		return nil, &ValidationError{Msg: fmt.Sprintf("holding account %s has %d units; exactly one is required", holdingAddr, holding.Amount)}
	}

	instrs := b.prelude(p.ComputeUnitPrice)
	thawed := false

	if holding.Frozen {
		if mint.Variant != types.VariantRestricted || mint.FreezeAuthority == nil {
			ferr := &FrozenAccountError{Account: holdingAddr.String()}
			if mint.FreezeAuthority != nil {
				ferr.FreezeAuthority = mint.FreezeAuthority.String()
			}
			return nil, ferr
		}
		// Thaw must precede the destroy instruction. The freeze authority
		// becomes a required co-signer of the whole transaction.
		instrs = append(instrs, NewThawAccount(holdingAddr, p.Mint, *mint.FreezeAuthority))
		thawed = true
	}

	var desc string
	switch p.Method {
	case types.MethodBurn:
		instrs = append(instrs,
			NewBurnChecked(holdingAddr, p.Mint, p.Owner, 1, 0),
			NewCloseAccount(holdingAddr, p.Owner, p.Owner),
		)
		desc = fmt.Sprintf("burn 1 unit of %s", p.Mint)

	case types.MethodTransferToSink:
		sink, derr := derive.Derive(p.Ref)
		if derr != nil {
			return nil, derr
		}
		sinkATA, _, aerr := solana.FindAssociatedTokenAddress(sink.Address, p.Mint)
		if aerr != nil {
			return nil, fmt.Errorf("derive sink token account: %w", aerr)
		}
		instrs = append(instrs,
			NewCreateATAIdempotent(p.Payer, sinkATA, sink.Address, p.Mint),
			NewTransferChecked(holdingAddr, p.Mint, sinkATA, p.Owner, 1, 0),
			NewCloseAccount(holdingAddr, p.Owner, p.Owner),
		)
		desc = fmt.Sprintf("strand 1 unit of %s on sink %s", p.Mint, sink.Address)
	}

	if thawed {
		desc = "thaw frozen holding, then " + desc
	}
	instrs = append(instrs, NewMemo(memo.Encode(p.Ref), p.Owner))
	desc += fmt.Sprintf(", recording memo for %s", p.Ref)

	return b.assemble(ctx, p.Payer, instrs, desc)
}

// BuildPointer assembles the auxiliary pointer-record transaction: a
// memo-only marker naming the mint, used when the retirement memo itself
// had to be split out for size.
func (b *Builder) BuildPointer(ctx context.Context, payer, mint solana.PublicKey, ref inscription.Ref) (*Built, error) {
	if payer.IsZero() || mint.IsZero() {
		return nil, &ValidationError{Msg: "payer and mint are required"}
	}
	payload, err := memo.EncodePointer(mint.String(), ref)
	if err != nil {
		return nil, err
	}
	instrs := []solana.Instruction{NewMemo(payload, payer)}
	desc := fmt.Sprintf("pointer record linking mint %s to %s", mint, ref)
	return b.assemble(ctx, payer, instrs, desc)
}

// prelude returns the compute budget instructions every flow starts with.
func (b *Builder) prelude(unitPrice uint64) []solana.Instruction {
	instrs := []solana.Instruction{NewSetComputeUnitLimit(b.unitLimit)}
	if unitPrice > 0 {
		instrs = append(instrs, NewSetComputeUnitPrice(unitPrice))
	}
	return instrs
}

// assemble compiles the instruction list into an unsigned transaction,
// fills zeroed signature placeholders for every required signer so the
// size check measures what will actually hit the wire, and enforces the
// packet ceiling before anything is returned.
func (b *Builder) assemble(ctx context.Context, payer solana.PublicKey, instrs []solana.Instruction, desc string) (*Built, error) {
	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	tx.Signatures = make([]solana.Signature, numSigners)

	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	if len(wire) > MaxTransactionSize {
		return nil, &SizeExceededError{Size: len(wire), Max: MaxTransactionSize}
	}

	fee := b.estimateFee(ctx, tx, numSigners)

	signers := make([]string, 0, numSigners)
	for _, key := range tx.Message.AccountKeys[:numSigners] {
		signers = append(signers, key.String())
	}

	return &Built{
		Tx: tx,
		Result: types.BuildResult{
			Transaction: base64.StdEncoding.EncodeToString(wire),
			Description: desc,
			FeeLamports: fee,
			SizeBytes:   len(wire),
			Signers:     signers,
		},
	}, nil
}

// estimateFee asks the RPC for a fee estimate and falls back to the flat
// per-signature rate when the estimate is missing or the call fails. A
// fee estimate is advisory, never worth failing a build over.
func (b *Builder) estimateFee(ctx context.Context, tx *solana.Transaction, numSigners int) uint64 {
	fallback := uint64(numSigners) * lamportsPerSignature

	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fallback
	}
	fee, ok, err := b.chain.FeeForMessage(ctx, base64.StdEncoding.EncodeToString(msgBytes))
	if err != nil || !ok {
		if err != nil {
			logging.Debug("fee estimate unavailable", logging.Err(err), logging.Component("txbuild"))
		}
		return fallback
	}
	return fee
}
