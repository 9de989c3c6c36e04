package txbuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/ordbridge/teleburnd/internal/derive"
	"github.com/ordbridge/teleburnd/internal/inscription"
	"github.com/ordbridge/teleburnd/internal/memo"
	"github.com/ordbridge/teleburnd/internal/token"
	"github.com/ordbridge/teleburnd/pkg/types"
)

const sampleRef = "6fb976ab49dcec017f1e201e84395983204ae1a7c2abf7ced0a85d692e442799i0"

func key(seed byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = seed
	}
	return solana.PublicKeyFromBytes(b[:])
}

type stubAccounts struct {
	mints    map[solana.PublicKey]token.MintInfo
	holdings map[solana.PublicKey]token.HoldingInfo
	err      error
}

func (s *stubAccounts) DetectMint(_ context.Context, mint solana.PublicKey) (token.MintInfo, error) {
	if s.err != nil {
		return token.MintInfo{}, s.err
	}
	if info, ok := s.mints[mint]; ok {
		return info, nil
	}
	return token.MintInfo{Address: mint, Variant: types.VariantUnsupported}, nil
}

func (s *stubAccounts) Holding(_ context.Context, account solana.PublicKey) (token.HoldingInfo, error) {
	if s.err != nil {
		return token.HoldingInfo{}, s.err
	}
	if info, ok := s.holdings[account]; ok {
		return info, nil
	}
	return token.HoldingInfo{}, fmt.Errorf("%w: %s", token.ErrAccountNotFound, account)
}

type stubChain struct {
	fee    uint64
	feeOK  bool
	feeErr error
}

func (s *stubChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash(key(0xbb)), nil
}

func (s *stubChain) FeeForMessage(context.Context, string) (uint64, bool, error) {
	return s.fee, s.feeOK, s.feeErr
}

// fixture wires a payer-owned single-unit holding for one mint.
type fixture struct {
	payer, owner, mint, freeze, holding solana.PublicKey
	accounts                            *stubAccounts
	builder                             *Builder
	ref                                 inscription.Ref
}

func newFixture(t *testing.T, variant types.TokenVariant, frozen, hasFreezeAuth bool) *fixture {
	t.Helper()

	f := &fixture{
		payer:  key(0x01),
		owner:  key(0x02),
		mint:   key(0x03),
		freeze: key(0x04),
		ref:    inscription.MustParse(sampleRef),
	}

	holding, _, err := solana.FindAssociatedTokenAddress(f.owner, f.mint)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	f.holding = holding

	mintInfo := token.MintInfo{
		Address:      f.mint,
		OwnerProgram: solana.TokenProgramID,
		Supply:       1,
		Variant:      variant,
	}
	if hasFreezeAuth {
		fa := f.freeze
		mintInfo.FreezeAuthority = &fa
	}

	f.accounts = &stubAccounts{
		mints: map[solana.PublicKey]token.MintInfo{f.mint: mintInfo},
		holdings: map[solana.PublicKey]token.HoldingInfo{
			holding: {
				Address: holding,
				Mint:    f.mint,
				Owner:   f.owner,
				Amount:  1,
				Frozen:  frozen,
			},
		},
	}
	f.builder = NewBuilder(f.accounts, &stubChain{})
	return f
}

func (f *fixture) retireParams(method types.RetirementMethod) RetireParams {
	return RetireParams{
		Payer:  f.payer,
		Owner:  f.owner,
		Mint:   f.mint,
		Ref:    f.ref,
		Method: method,
	}
}

// instructionData returns each compiled instruction's program and payload
// in transaction order.
func instructionData(t *testing.T, tx *solana.Transaction) ([]solana.PublicKey, [][]byte) {
	t.Helper()
	var programs []solana.PublicKey
	var payloads [][]byte
	for _, compiled := range tx.Message.Instructions {
		programs = append(programs, tx.Message.AccountKeys[compiled.ProgramIDIndex])
		payloads = append(payloads, compiled.Data)
	}
	return programs, payloads
}

func findInstruction(programs []solana.PublicKey, payloads [][]byte, program solana.PublicKey, tag byte) int {
	for i := range programs {
		if programs[i].Equals(program) && len(payloads[i]) > 0 && payloads[i][0] == tag {
			return i
		}
	}
	return -1
}

func TestBuildRetireFrozenRestrictedThawsBeforeBurn(t *testing.T) {
	f := newFixture(t, types.VariantRestricted, true, true)

	built, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	if err != nil {
		t.Fatalf("BuildRetire: %v", err)
	}

	programs, payloads := instructionData(t, built.Tx)
	thaw := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxThawAccount)
	burn := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxBurnChecked)
	if thaw < 0 {
		t.Fatal("frozen restricted holding must produce a thaw instruction")
	}
	if burn < 0 {
		t.Fatal("burn instruction missing")
	}
	if thaw >= burn {
		t.Errorf("thaw at index %d must precede burn at index %d", thaw, burn)
	}

	// The freeze authority co-signs the thaw.
	var found bool
	for _, s := range built.Result.Signers {
		if s == f.freeze.String() {
			found = true
		}
	}
	if !found {
		t.Errorf("freeze authority missing from signers: %v", built.Result.Signers)
	}
}

func TestBuildRetireUnfrozenHasNoThaw(t *testing.T) {
	f := newFixture(t, types.VariantRestricted, false, true)

	built, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	if err != nil {
		t.Fatalf("BuildRetire: %v", err)
	}

	programs, payloads := instructionData(t, built.Tx)
	if idx := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxThawAccount); idx >= 0 {
		t.Errorf("unfrozen holding must not produce a thaw instruction, found at %d", idx)
	}
}

func TestBuildRetireFrozenStandardFails(t *testing.T) {
	f := newFixture(t, types.VariantStandard, true, true)

	_, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	var ferr *FrozenAccountError
	if !errors.As(err, &ferr) {
		t.Fatalf("want FrozenAccountError, got %v", err)
	}
	if ferr.FreezeAuthority != f.freeze.String() {
		t.Errorf("error should name the freeze authority, got %q", ferr.FreezeAuthority)
	}
}

func TestBuildRetireFrozenWithoutAuthorityFails(t *testing.T) {
	f := newFixture(t, types.VariantRestricted, true, false)

	_, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	var ferr *FrozenAccountError
	if !errors.As(err, &ferr) {
		t.Fatalf("want FrozenAccountError, got %v", err)
	}
	if ferr.FreezeAuthority != "" {
		t.Errorf("no authority should be named, got %q", ferr.FreezeAuthority)
	}
}

func TestBuildRetireUnsupportedVariant(t *testing.T) {
	f := newFixture(t, types.VariantUnsupported, false, false)

	_, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	var uerr *UnsupportedVariantError
	if !errors.As(err, &uerr) {
		t.Fatalf("want UnsupportedVariantError, got %v", err)
	}
}

func TestBuildRetireValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RetireParams, *fixture)
	}{
		{"unknown method", func(p *RetireParams, _ *fixture) { p.Method = "shred" }},
		{"zero owner", func(p *RetireParams, _ *fixture) { p.Owner = solana.PublicKey{} }},
		{"nonzero decimals", func(_ *RetireParams, f *fixture) {
			m := f.accounts.mints[f.mint]
			m.Decimals = 6
			f.accounts.mints[f.mint] = m
		}},
		{"wrong amount", func(_ *RetireParams, f *fixture) {
			h := f.accounts.holdings[f.holding]
			h.Amount = 3
			f.accounts.holdings[f.holding] = h
		}},
		{"no holding account", func(_ *RetireParams, f *fixture) {
			delete(f.accounts.holdings, f.holding)
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, types.VariantStandard, false, false)
			p := f.retireParams(types.MethodBurn)
			test.mutate(&p, f)

			_, err := f.builder.BuildRetire(context.Background(), p)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
}

func TestBuildRetireMemoRidesLast(t *testing.T) {
	f := newFixture(t, types.VariantStandard, false, false)

	built, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	if err != nil {
		t.Fatalf("BuildRetire: %v", err)
	}

	programs, payloads := instructionData(t, built.Tx)
	last := len(programs) - 1
	if !programs[last].Equals(solana.MemoProgramID) {
		t.Fatalf("last instruction program = %s, want memo program", programs[last])
	}
	want := memo.Encode(f.ref)
	if !bytes.Equal(payloads[last], []byte(want)) {
		t.Errorf("memo payload = %q, want %q", payloads[last], want)
	}
	if len(want) != 75 {
		t.Errorf("canonical memo for index-0 reference should be 75 bytes, got %d", len(want))
	}
}

func TestBuildRetireTransferToSink(t *testing.T) {
	f := newFixture(t, types.VariantStandard, false, false)

	built, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodTransferToSink))
	if err != nil {
		t.Fatalf("BuildRetire: %v", err)
	}

	programs, payloads := instructionData(t, built.Tx)
	create := findInstruction(programs, payloads, solana.SPLAssociatedTokenAccountProgramID, ataIxCreateIdempotent)
	transfer := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxTransferChecked)
	closeIdx := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxCloseAccount)
	if create < 0 || transfer < 0 || closeIdx < 0 {
		t.Fatalf("transfer flow incomplete: create=%d transfer=%d close=%d", create, transfer, closeIdx)
	}
	if !(create < transfer && transfer < closeIdx) {
		t.Errorf("instruction order wrong: create=%d transfer=%d close=%d", create, transfer, closeIdx)
	}

	// The sink must be the deterministic off-curve address for the reference.
	sink, err := derive.Derive(f.ref)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !strings.Contains(built.Result.Description, sink.Address.String()) {
		t.Errorf("description should name sink %s: %q", sink.Address, built.Result.Description)
	}
	for _, s := range built.Result.Signers {
		if s == sink.Address.String() {
			t.Error("sink address must never be a signer")
		}
	}
}

func TestBuildSealMemoOnly(t *testing.T) {
	f := newFixture(t, types.VariantStandard, false, false)

	built, err := f.builder.BuildSeal(context.Background(), SealParams{
		Payer: f.payer,
		Mint:  f.mint,
		Ref:   f.ref,
	})
	if err != nil {
		t.Fatalf("BuildSeal: %v", err)
	}

	programs, payloads := instructionData(t, built.Tx)
	burn := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxBurnChecked)
	transfer := findInstruction(programs, payloads, solana.TokenProgramID, tokenIxTransferChecked)
	if burn >= 0 || transfer >= 0 {
		t.Error("seal must not carry destructive instructions")
	}
	if findInstruction(programs, payloads, solana.MemoProgramID, 't') < 0 {
		t.Error("seal must carry the canonical memo")
	}
}

func TestBuildSealMissingMint(t *testing.T) {
	f := newFixture(t, types.VariantStandard, false, false)

	_, err := f.builder.BuildSeal(context.Background(), SealParams{
		Payer: f.payer,
		Mint:  key(0x7f),
		Ref:   f.ref,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for missing mint, got %v", err)
	}
}

func TestAssembleRejectsOversizedTransaction(t *testing.T) {
	f := newFixture(t, types.VariantStandard, false, false)

	var instrs []solana.Instruction
	for i := 0; i < 20; i++ {
		instrs = append(instrs, NewMemo(strings.Repeat("x", 100), f.payer))
	}

	_, err := f.builder.assemble(context.Background(), f.payer, instrs, "oversized")
	var serr *SizeExceededError
	if !errors.As(err, &serr) {
		t.Fatalf("want SizeExceededError, got %v", err)
	}
	if serr.Size <= MaxTransactionSize {
		t.Errorf("reported size %d should exceed %d", serr.Size, MaxTransactionSize)
	}
}

func TestEstimateFeeFallback(t *testing.T) {
	f := newFixture(t, types.VariantStandard, false, false)
	f.builder = NewBuilder(f.accounts, &stubChain{feeErr: errors.New("down")})

	built, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	if err != nil {
		t.Fatalf("BuildRetire: %v", err)
	}
	want := uint64(len(built.Result.Signers)) * lamportsPerSignature
	if built.Result.FeeLamports != want {
		t.Errorf("fee = %d, want fallback %d", built.Result.FeeLamports, want)
	}
}

func TestBuildResultSizeCountsPlaceholders(t *testing.T) {
	f := newFixture(t, types.VariantRestricted, true, true)

	built, err := f.builder.BuildRetire(context.Background(), f.retireParams(types.MethodBurn))
	if err != nil {
		t.Fatalf("BuildRetire: %v", err)
	}
	if len(built.Tx.Signatures) != len(built.Result.Signers) {
		t.Errorf("placeholder count %d != signer count %d", len(built.Tx.Signatures), len(built.Result.Signers))
	}
	for _, sig := range built.Tx.Signatures {
		if !sig.IsZero() {
			t.Error("placeholder signatures must be zeroed")
		}
	}
	if built.Result.SizeBytes > MaxTransactionSize {
		t.Errorf("returned size %d exceeds the wire limit", built.Result.SizeBytes)
	}
}
