package txbuild

import (
	"fmt"

	"github.com/ordbridge/teleburnd/pkg/types"
)

// ValidationError rejects a request before any RPC state is consulted or
// after on-chain state contradicts it.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Code returns the wire error code for this error.
func (e *ValidationError) Code() types.ErrorCode { return types.CodeValidation }

// UnsupportedVariantError is returned when the mint's capability variant has
// no retirement flow. The caller should fall back to an external path.
type UnsupportedVariantError struct {
	Mint    string
	Variant types.TokenVariant
}

func (e *UnsupportedVariantError) Error() string {
	return fmt.Sprintf("mint %s: variant %q has no retirement flow", e.Mint, e.Variant)
}

func (e *UnsupportedVariantError) Code() types.ErrorCode { return types.CodeUnsupportedVariant }

// FrozenAccountError is returned when the holding account is frozen and no
// unfreeze path exists, so the destroy instruction would fail on chain.
type FrozenAccountError struct {
	Account         string
	FreezeAuthority string
}

func (e *FrozenAccountError) Error() string {
	if e.FreezeAuthority == "" {
		return fmt.Sprintf("holding account %s is frozen and the mint has no freeze authority", e.Account)
	}
	return fmt.Sprintf("holding account %s is frozen; thaw requires signature from %s", e.Account, e.FreezeAuthority)
}

func (e *FrozenAccountError) Code() types.ErrorCode { return types.CodeFrozenAccount }

// SizeExceededError is returned when the serialized transaction, including
// placeholder signatures, would not fit in a wire packet.
type SizeExceededError struct {
	Size int
	Max  int
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("transaction is %d bytes, exceeds the %d byte wire limit; split the memo into a separate pointer transaction", e.Size, e.Max)
}

func (e *SizeExceededError) Code() types.ErrorCode { return types.CodeTransactionTooLarge }
