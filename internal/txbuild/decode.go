package txbuild

import (
	"github.com/gagliardetto/solana-go"

	"github.com/ordbridge/teleburnd/pkg/types"
)

// DecodeTransaction re-reads a compiled transaction into display-ready
// invocations, recomputing each account's signer and writable role from
// the message header. Used by the rehearsal pipeline to prove the caller
// can independently see what they are being asked to sign.
func DecodeTransaction(tx *solana.Transaction) []types.Invocation {
	msg := tx.Message
	keys := msg.AccountKeys

	numRequired := int(msg.Header.NumRequiredSignatures)
	numROSigned := int(msg.Header.NumReadonlySignedAccounts)
	numROUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	writable := func(idx int) bool {
		if idx < numRequired {
			return idx < numRequired-numROSigned
		}
		return idx < len(keys)-numROUnsigned
	}

	out := make([]types.Invocation, 0, len(msg.Instructions))
	for _, compiled := range msg.Instructions {
		inv := types.Invocation{DataLen: len(compiled.Data)}
		if int(compiled.ProgramIDIndex) < len(keys) {
			inv.Program = keys[compiled.ProgramIDIndex].String()
		}
		for _, accIdx := range compiled.Accounts {
			idx := int(accIdx)
			if idx >= len(keys) {
				continue
			}
			inv.Accounts = append(inv.Accounts, types.InvocationRole{
				Address:  keys[idx].String(),
				Signer:   idx < numRequired,
				Writable: writable(idx),
			})
		}
		out = append(out, inv)
	}
	return out
}
