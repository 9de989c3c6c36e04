// Package simulate runs the signature-free rehearsal pipeline: build each
// transaction, decode it back to prove the caller can see what they would
// sign, and replay it against live cluster state. Nothing in this package
// ever signs or submits.
package simulate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ordbridge/teleburnd/internal/inscription"
	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/internal/txbuild"
	"github.com/ordbridge/teleburnd/pkg/types"
)

// frozenErrFragment appears in program logs when a token instruction hits
// a frozen account.
const frozenErrFragment = "custom program error: 0x11"

// TransactionSimulator replays an unsigned transaction against cluster
// state. Satisfied by PoolSimulator; stubbed in tests.
type TransactionSimulator interface {
	Simulate(ctx context.Context, tx *solana.Transaction) (*solrpc.SimulateTransactionResult, error)
}

// PoolSimulator adapts the failover pool to TransactionSimulator. Signature
// verification is disabled and the blockhash replaced, so placeholder
// signatures rehearse exactly like signed ones.
type PoolSimulator struct {
	Pool *rpc.Pool
}

func (p *PoolSimulator) Simulate(ctx context.Context, tx *solana.Transaction) (*solrpc.SimulateTransactionResult, error) {
	var out *solrpc.SimulateTransactionResult
	err := p.Pool.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.SimulateTransactionWithOpts(ctx, tx, &solrpc.SimulateTransactionOpts{
			SigVerify:              false,
			ReplaceRecentBlockhash: true,
			Commitment:             solrpc.CommitmentConfirmed,
		})
		if err != nil {
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

// Params selects what the rehearsal covers.
type Params struct {
	Payer  solana.PublicKey
	Owner  solana.PublicKey
	Mint   solana.PublicKey
	Ref    inscription.Ref
	Method types.RetirementMethod
	// IncludePointer adds the auxiliary pointer-record transaction to the
	// rehearsal.
	IncludePointer bool
}

// Runner drives the rehearsal pipeline.
type Runner struct {
	builder *txbuild.Builder
	sim     TransactionSimulator
}

// NewRunner creates a rehearsal runner.
func NewRunner(builder *txbuild.Builder, sim TransactionSimulator) *Runner {
	return &Runner{builder: builder, sim: sim}
}

// Run executes the full rehearsal and always returns a report. Step
// failures are recorded in the report, never surfaced as an error; a
// caller holding a report with Success=false has a diagnosis, not an
// outage.
func (r *Runner) Run(ctx context.Context, p Params) types.DryRunReport {
	report := types.DryRunReport{Timestamp: time.Now().UTC()}

	r.runStage(ctx, &report, "seal", func() (*txbuild.Built, error) {
		return r.builder.BuildSeal(ctx, txbuild.SealParams{
			Payer: p.Payer,
			Mint:  p.Mint,
			Ref:   p.Ref,
		})
	})

	r.runStage(ctx, &report, "retire", func() (*txbuild.Built, error) {
		return r.builder.BuildRetire(ctx, txbuild.RetireParams{
			Payer:  p.Payer,
			Owner:  p.Owner,
			Mint:   p.Mint,
			Ref:    p.Ref,
			Method: p.Method,
		})
	})

	if p.IncludePointer {
		r.runStage(ctx, &report, "pointer", func() (*txbuild.Built, error) {
			return r.builder.BuildPointer(ctx, p.Payer, p.Mint, p.Ref)
		})
	}

	report.Success = true
	for _, step := range report.Steps {
		if !step.Success {
			report.Success = false
			break
		}
	}
	logging.Info("dry run complete",
		logging.Mint(p.Mint.String()),
		logging.Component("simulate"),
		"success", report.Success,
		"steps", len(report.Steps))
	return report
}

// runStage appends the build, decode, and simulate steps for one
// transaction. A build failure skips the dependent steps; later stages
// still run so one report covers everything wrong at once.
func (r *Runner) runStage(ctx context.Context, report *types.DryRunReport, stage string, build func() (*txbuild.Built, error)) {
	built, err := build()
	if err != nil {
		report.Steps = append(report.Steps, types.DryRunStep{
			Name:    "build-" + stage,
			Success: false,
			Error:   err.Error(),
		})
		report.Errors = append(report.Errors, fmt.Sprintf("build-%s: %v", stage, err))
		return
	}
	report.Steps = append(report.Steps, types.DryRunStep{
		Name:    "build-" + stage,
		Success: true,
		Logs: []string{
			built.Result.Description,
			fmt.Sprintf("%d bytes, %d signer(s), ~%d lamports", built.Result.SizeBytes, len(built.Result.Signers), built.Result.FeeLamports),
		},
	})

	report.Steps = append(report.Steps, decodeStep(stage, built))
	report.Steps = append(report.Steps, r.simulateStep(ctx, report, stage, built))
}

func decodeStep(stage string, built *txbuild.Built) types.DryRunStep {
	step := types.DryRunStep{Name: "decode-" + stage, Success: true}
	for _, inv := range txbuild.DecodeTransaction(built.Tx) {
		var signers int
		for _, acc := range inv.Accounts {
			if acc.Signer {
				signers++
			}
		}
		step.Logs = append(step.Logs, fmt.Sprintf("program %s: %d account(s), %d signer(s), %d data byte(s)",
			inv.Program, len(inv.Accounts), signers, inv.DataLen))
	}
	return step
}

func (r *Runner) simulateStep(ctx context.Context, report *types.DryRunReport, stage string, built *txbuild.Built) types.DryRunStep {
	step := types.DryRunStep{Name: "simulate-" + stage}

	res, err := r.sim.Simulate(ctx, built.Tx)
	if err != nil {
		step.Error = err.Error()
		report.Errors = append(report.Errors, fmt.Sprintf("simulate-%s: %v", stage, err))
		return step
	}

	step.Logs = res.Logs
	if res.UnitsConsumed != nil {
		step.ComputeUnits = *res.UnitsConsumed
	}
	if res.Err != nil {
		step.Error = fmt.Sprintf("%v", res.Err)
		report.Errors = append(report.Errors, fmt.Sprintf("simulate-%s: %v", stage, res.Err))
		if logsContain(res.Logs, frozenErrFragment) {
			report.Warnings = append(report.Warnings, "holding account is frozen; the retirement flow must thaw it first")
		}
		return step
	}

	step.Success = true
	return step
}

func logsContain(logs []string, fragment string) bool {
	for _, line := range logs {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
