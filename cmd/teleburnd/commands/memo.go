package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ordbridge/teleburnd/internal/inscription"
	"github.com/ordbridge/teleburnd/internal/memo"
)

// NewMemoCmd creates the memo command group.
func NewMemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memo",
		Short: "Encode and decode teleburn memos",
	}
	cmd.AddCommand(newMemoEncodeCmd())
	cmd.AddCommand(newMemoDecodeCmd())
	return cmd
}

func newMemoEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <inscription-id>",
		Short: "Emit the canonical memo for an inscription reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := inscription.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Println(memo.Encode(ref))
			return nil
		},
	}
}

func newMemoDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <memo-text>",
		Short: "Decode a memo in any supported shape",
		Long:  "Decodes canonical, legacy-prefixed, and legacy JSON teleburn memos.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := memo.Decode(args[0])
			if err != nil {
				return err
			}

			out := map[string]any{
				"kind":        m.Kind.String(),
				"inscription": m.Ref.String(),
			}
			if m.Mint != "" {
				out["mint"] = m.Mint
			}
			if m.MediaHash != "" {
				out["media_hash"] = m.MediaHash
			}
			if m.Timestamp != 0 {
				out["timestamp"] = m.Timestamp
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		},
	}
}
