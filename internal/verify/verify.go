// Package verify reconciles on-chain state against the teleburn memo
// history to answer one question: is this token still spendable, and how
// sure are we either way.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

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

// defaultSignatureLimit caps how much history one verification scans.
const defaultSignatureLimit = 100

// SigMemo is one confirmed transaction touching the scanned address,
// with whatever memo text it carried.
type SigMemo struct {
	Signature string
	Memo      string
	Failed    bool
}

// Scanner reads the chain state a verification needs. Satisfied by
// PoolScanner; stubbed in tests.
type Scanner interface {
	TokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, error)
	SignatureMemos(ctx context.Context, addr solana.PublicKey, limit int) ([]SigMemo, error)
	// HoldingAmount returns the balance of a token account, zero if the
	// account does not exist.
	HoldingAmount(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Service classifies a mint as active or retired.
type Service struct {
	scanner Scanner
	limit   int
}

// NewService creates a verification service over the given scanner.
func NewService(scanner Scanner) *Service {
	return &Service{scanner: scanner, limit: defaultSignatureLimit}
}

// Verify reconciles supply, sink balances, and memo history:
//
//   - zero supply means the unit was burned; a matching memo raises the
//     verdict to high confidence
//   - live supply fully stranded on the reference's sink address is a
//     retirement with high confidence
//   - live supply with a teleburn memo but no stranded balance is a
//     contradiction, reported as active with low confidence
//   - live supply and no memo is just an active token
func (s *Service) Verify(ctx context.Context, mint solana.PublicKey) (types.VerifyResult, error) {
	supply, err := s.scanner.TokenSupply(ctx, mint)
	if err != nil {
		return types.VerifyResult{}, err
	}

	ref, sigs := s.scanMemos(ctx, mint)
	result := types.VerifyResult{Supply: supply, Signatures: sigs}
	if ref != nil {
		result.Reference = ref.String()
	}

	if supply == 0 {
		result.Status = types.StatusRetired
		result.Confidence = types.ConfidenceLow
		if ref != nil {
			result.Confidence = types.ConfidenceHigh
		}
		return result, nil
	}

	if ref == nil {
		result.Status = types.StatusActive
		result.Confidence = types.ConfidenceHigh
		return result, nil
	}

	stranded, err := s.strandedAmount(ctx, mint, *ref)
	if err != nil {
		return types.VerifyResult{}, err
	}
	if stranded >= supply {
		result.Status = types.StatusRetired
		result.Confidence = types.ConfidenceHigh
		return result, nil
	}

	// A memo claims retirement but the supply is not accounted for.
	result.Status = types.StatusActive
	result.Confidence = types.ConfidenceLow
	return result, nil
}

// scanMemos walks recent history for the mint and returns the newest
// decodable teleburn reference plus every signature that carried one.
// Undecodable memos are skipped, never fatal; a scan that cannot reach
// the chain degrades to "no memo found".
func (s *Service) scanMemos(ctx context.Context, mint solana.PublicKey) (*inscription.Ref, []string) {
	entries, err := s.scanner.SignatureMemos(ctx, mint, s.limit)
	if err != nil {
		logging.Warn("memo scan failed",
			logging.Mint(mint.String()),
			logging.Err(err),
			logging.Component("verify"))
		return nil, nil
	}

	var newest *inscription.Ref
	var sigs []string
	for _, entry := range entries {
		if entry.Failed || entry.Memo == "" {
			continue
		}
		decoded, derr := memo.Decode(entry.Memo)
		if derr != nil {
			continue
		}
		sigs = append(sigs, entry.Signature)
		if newest == nil {
			r := decoded.Ref
			newest = &r
		}
	}
	return newest, sigs
}

// strandedAmount returns the balance sitting on the sink token account
// derived from ref.
func (s *Service) strandedAmount(ctx context.Context, mint solana.PublicKey, ref inscription.Ref) (uint64, error) {
	sink, err := derive.Derive(ref)
	if err != nil {
		return 0, err
	}
	sinkATA, _, err := solana.FindAssociatedTokenAddress(sink.Address, mint)
	if err != nil {
		return 0, fmt.Errorf("derive sink token account: %w", err)
	}
	return s.scanner.HoldingAmount(ctx, sinkATA)
}

// PoolScanner adapts the failover pool to Scanner.
type PoolScanner struct {
	Pool *rpc.Pool
}

func (p *PoolScanner) TokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	var supply uint64
	err := p.Pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetTokenSupply(ctx, mint, solrpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		n, perr := strconv.ParseUint(res.Value.Amount, 10, 64)
		if perr != nil {
			return fmt.Errorf("parse supply %q: %w", res.Value.Amount, perr)
		}
		supply = n
		return nil
	})
	return supply, err
}

// SignatureMemos lists recent confirmed signatures for addr. The RPC memo
// field arrives as "[len] payload"; the length prefix is stripped.
// Entries without an inline memo fall back to fetching the transaction
// and reading its memo instructions directly.
func (p *PoolScanner) SignatureMemos(ctx context.Context, addr solana.PublicKey, limit int) ([]SigMemo, error) {
	var out []SigMemo
	err := p.Pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		entries, err := client.GetSignaturesForAddressWithOpts(ctx, addr, &solrpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: solrpc.CommitmentConfirmed,
		})
		if err != nil {
			return err
		}

		out = out[:0]
		for _, entry := range entries {
			sm := SigMemo{
				Signature: entry.Signature.String(),
				Failed:    entry.Err != nil,
			}
			if entry.Memo != nil {
				sm.Memo = stripMemoPrefix(*entry.Memo)
			} else if !sm.Failed {
				sm.Memo = p.memoFromTransaction(ctx, client, entry.Signature)
			}
			out = append(out, sm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PoolScanner) HoldingAmount(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var amount uint64
	err := p.Pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetAccountInfoWithOpts(ctx, account, &solrpc.GetAccountInfoOpts{
			Commitment: solrpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			if errors.Is(err, solrpc.ErrNotFound) {
				amount = 0
				return nil
			}
			return err
		}
		raw, perr := token.ParseTokenAccount(res.Value.Data.GetBinary())
		if perr != nil {
			return fmt.Errorf("sink account %s: %w", account, perr)
		}
		amount = raw.Amount
		return nil
	})
	return amount, err
}

// memoFromTransaction decodes the full transaction and returns the first
// memo instruction payload, or empty if the transaction has none or
// cannot be fetched. Best effort only.
func (p *PoolScanner) memoFromTransaction(ctx context.Context, client *solrpc.Client, sig solana.Signature) string {
	maxVersion := uint64(0)
	res, err := client.GetTransaction(ctx, sig, &solrpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     solrpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || res == nil || res.Transaction == nil {
		return ""
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return ""
	}

	for _, compiled := range tx.Message.Instructions {
		if int(compiled.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		if tx.Message.AccountKeys[compiled.ProgramIDIndex].Equals(solana.MemoProgramID) {
			return string(compiled.Data)
		}
	}
	return ""
}

// stripMemoPrefix removes the "[len] " framing the RPC layer wraps
// around memo text.
func stripMemoPrefix(s string) string {
	if !strings.HasPrefix(s, "[") {
		return s
	}
	end := strings.Index(s, "] ")
	if end < 0 {
		return s
	}
	return s[end+2:]
}
