// Package token classifies mints by capability standard and reads the
// on-chain state the retirement builder needs.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/pkg/types"
)

// MintInfo is everything the builder needs to know about a mint.
type MintInfo struct {
	Address         solana.PublicKey
	OwnerProgram    solana.PublicKey
	Supply          uint64
	Decimals        uint8
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
	Variant         types.TokenVariant
	// Standard is the declared Metaplex token standard, when present.
	Standard    MetaStandard
	HasStandard bool
}

// HoldingInfo is the state of a token holding account.
type HoldingInfo struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
	Frozen  bool
}

// AccountReader fetches raw account data. Satisfied by Detector; stubbed in
// builder and simulator tests.
type AccountReader interface {
	DetectMint(ctx context.Context, mint solana.PublicKey) (MintInfo, error)
	Holding(ctx context.Context, account solana.PublicKey) (HoldingInfo, error)
}

// ErrAccountNotFound is returned when a requested account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Detector reads mint, metadata, and holding accounts over RPC and maps the
// declared capability standard to a TokenVariant.
type Detector struct {
	pool       *rpc.Pool
	commitment solrpc.CommitmentType
}

// NewDetector creates a detector using the given failover pool.
func NewDetector(pool *rpc.Pool) *Detector {
	return &Detector{pool: pool, commitment: solrpc.CommitmentConfirmed}
}

// DetectMint fetches the mint account and its metadata, classifying the
// capability variant:
//
//   - missing mint or an owner program we do not retire → Unsupported
//   - Token-2022 → Unsupported (unimplemented, fails closed)
//   - declared ProgrammableNonFungible → Restricted
//   - everything else under the token program → Standard
//
// Unsupported is a classification, not an error: callers treat it as a
// signal to defer to an external fallback path.
func (d *Detector) DetectMint(ctx context.Context, mint solana.PublicKey) (MintInfo, error) {
	acct, err := d.fetchAccount(ctx, mint)
	if err != nil {
		return MintInfo{}, err
	}
	if acct == nil {
		return MintInfo{Address: mint, Variant: types.VariantUnsupported}, nil
	}

	info := MintInfo{Address: mint, OwnerProgram: acct.Owner}

	switch {
	case acct.Owner.Equals(solana.Token2022ProgramID):
		info.Variant = types.VariantUnsupported
		return info, nil
	case !acct.Owner.Equals(solana.TokenProgramID):
		info.Variant = types.VariantUnsupported
		return info, nil
	}

	raw, err := ParseMint(acct.Data.GetBinary())
	if err != nil {
		return MintInfo{}, fmt.Errorf("mint %s: %w", mint, err)
	}
	info.Supply = raw.Supply
	info.Decimals = raw.Decimals
	info.MintAuthority = raw.MintAuthority
	info.FreezeAuthority = raw.FreezeAuthority

	info.Variant = types.VariantStandard
	if std, ok := d.metadataStandard(ctx, mint); ok {
		info.Standard = std
		info.HasStandard = true
		if std == StandardProgrammableNonFungible {
			info.Variant = types.VariantRestricted
		}
	}
	return info, nil
}

// Holding fetches and decodes a token holding account.
func (d *Detector) Holding(ctx context.Context, account solana.PublicKey) (HoldingInfo, error) {
	acct, err := d.fetchAccount(ctx, account)
	if err != nil {
		return HoldingInfo{}, err
	}
	if acct == nil {
		return HoldingInfo{}, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}

	raw, err := ParseTokenAccount(acct.Data.GetBinary())
	if err != nil {
		return HoldingInfo{}, fmt.Errorf("holding %s: %w", account, err)
	}
	return HoldingInfo{
		Address: account,
		Mint:    raw.Mint,
		Owner:   raw.Owner,
		Amount:  raw.Amount,
		Frozen:  raw.Frozen,
	}, nil
}

// metadataStandard reads the Metaplex metadata account for the mint. Any
// shape we cannot walk is treated as "no declared standard"; the scan must
// tolerate foreign formats, not abort on them.
func (d *Detector) metadataStandard(ctx context.Context, mint solana.PublicKey) (MetaStandard, bool) {
	pda, _, err := solana.FindTokenMetadataAddress(mint)
	if err != nil {
		return 0, false
	}

	acct, err := d.fetchAccount(ctx, pda)
	if err != nil || acct == nil {
		if err != nil {
			logging.Debug("metadata fetch failed",
				logging.Mint(mint.String()),
				logging.Err(err),
				logging.Component("token"))
		}
		return 0, false
	}
	return ParseMetadataStandard(acct.Data.GetBinary())
}

// fetchAccount returns nil (not an error) for accounts that do not exist,
// so a not-found never burns a failover attempt.
func (d *Detector) fetchAccount(ctx context.Context, addr solana.PublicKey) (*solrpc.Account, error) {
	var out *solrpc.Account
	err := d.pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetAccountInfoWithOpts(ctx, addr, &solrpc.GetAccountInfoOpts{
			Commitment: d.commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			if errors.Is(err, solrpc.ErrNotFound) {
				out = nil
				return nil
			}
			return err
		}
		out = res.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
