package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ordbridge/teleburnd/internal/derive"
)

// NewDeriveCmd creates the derive command.
func NewDeriveCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "derive <inscription-id>",
		Short: "Derive the deterministic sink address for an inscription",
		Long:  "Computes the provably unspendable Solana address bound to a Bitcoin inscription reference. Fully offline.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := derive.DeriveString(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"inscription": args[0],
					"address":     res.Address.String(),
					"iterations":  res.Iterations,
				})
			}
			fmt.Println(res.Address.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
