package commands

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/internal/verify"
)

// NewVerifyCmd creates the verify command.
func NewVerifyCmd() *cobra.Command {
	var endpoints string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "verify <mint>",
		Short: "Check whether a mint has been retired",
		Long:  "Reconciles on-chain supply and sink balances against the teleburn memo history for a mint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return err
			}

			urls := splitEndpoints(endpoints)
			if len(urls) == 0 {
				cfg, cerr := loadConfig()
				if cerr != nil {
					return cerr
				}
				urls = cfg.RPC.Endpoints
			}
			pool, err := rpc.NewPool(urls)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := verify.NewService(&verify.PoolScanner{Pool: pool}).Verify(ctx, mint)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&endpoints, "rpc", "", "Comma-separated RPC endpoints (overrides config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	return cmd
}

func splitEndpoints(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
