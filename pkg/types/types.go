// Package types holds the wire-level data model shared between the core
// packages, the HTTP API, and external callers.
package types

import "time"

// RetirementMethod selects how a token is permanently retired.
type RetirementMethod string

const (
	// MethodBurn destroys the token unit, reducing mint supply to zero.
	MethodBurn RetirementMethod = "burn"
	// MethodTransferToSink strands the token on a provably unspendable
	// address and closes the emptied source account.
	MethodTransferToSink RetirementMethod = "transfer_to_sink"
)

// Valid reports whether m is a known retirement method.
func (m RetirementMethod) Valid() bool {
	return m == MethodBurn || m == MethodTransferToSink
}

// TokenVariant classifies a mint's capability standard.
type TokenVariant string

const (
	// VariantRestricted is a capability-gated token whose holding accounts
	// can be frozen by rule logic and must be thawed before destruction.
	VariantRestricted TokenVariant = "restricted"
	// VariantStandard is a plain token with no capability bookkeeping.
	VariantStandard TokenVariant = "standard"
	// VariantUnsupported is any standard this service does not retire.
	// Callers must fall back to an external path.
	VariantUnsupported TokenVariant = "unsupported"
)

// ErrorCode identifies a failure class in API responses.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "validation_error"
	CodeUnsupportedVariant  ErrorCode = "unsupported_variant"
	CodeFrozenAccount       ErrorCode = "frozen_account"
	CodeTransactionTooLarge ErrorCode = "transaction_size_exceeded"
	CodeRPCUnavailable      ErrorCode = "rpc_unavailable"
	CodeRateLimited         ErrorCode = "rate_limit_exceeded"
	CodeKillSwitchActive    ErrorCode = "kill_switch_active"
	CodeInternal            ErrorCode = "internal_error"
)

// BuildResult is the output of the seal and retire builders: an unsigned
// transaction plus enough context for the caller to review before signing.
type BuildResult struct {
	// Transaction is the unsigned transaction, base64-encoded with zeroed
	// signature placeholders for every required signer.
	Transaction string `json:"transaction"`
	// Description is a human-readable summary of the instruction sequence.
	Description string `json:"description"`
	// FeeLamports is the estimated network fee.
	FeeLamports uint64 `json:"fee_lamports"`
	// SizeBytes is the serialized wire size including signature placeholders.
	SizeBytes int `json:"size_bytes"`
	// Signers lists the accounts that must sign, in message order.
	Signers []string `json:"signers"`
}

// DryRunStep captures one stage of the rehearsal pipeline.
type DryRunStep struct {
	Name         string   `json:"name"`
	Success      bool     `json:"success"`
	Logs         []string `json:"logs,omitempty"`
	ComputeUnits uint64   `json:"compute_units,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// DryRunReport aggregates the full build-decode-simulate rehearsal.
// It is immutable once produced and carries no signatures; a failed step
// is recorded here as data, never surfaced as a transport error.
type DryRunReport struct {
	Steps     []DryRunStep `json:"steps"`
	Warnings  []string     `json:"warnings,omitempty"`
	Errors    []string     `json:"errors,omitempty"`
	Success   bool         `json:"success"`
	Timestamp time.Time    `json:"timestamp"`
}

// RetirementStatus classifies a token in verification results.
type RetirementStatus string

const (
	StatusActive  RetirementStatus = "active"
	StatusRetired RetirementStatus = "retired"
)

// Confidence qualifies a verification verdict.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// VerifyResult is the outcome of post-hoc reconciliation of on-chain state
// against the teleburn memo history.
type VerifyResult struct {
	Status     RetirementStatus `json:"status"`
	Supply     uint64           `json:"supply"`
	Confidence Confidence       `json:"confidence"`
	// Reference is the linked inscription reference, when discoverable.
	Reference string `json:"reference,omitempty"`
	// Signatures are the transactions carrying matching memos.
	Signatures []string `json:"signatures,omitempty"`
}

// InvocationRole tags an account's role inside a decoded instruction.
type InvocationRole struct {
	Address  string `json:"address"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Invocation is a decoded program invocation, for display only.
type Invocation struct {
	Program  string           `json:"program"`
	Accounts []InvocationRole `json:"accounts"`
	DataLen  int              `json:"data_len"`
}
