package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ordbridge/teleburnd/cmd/teleburnd/commands"
)

var rootCmd = &cobra.Command{
	Use:   "teleburnd",
	Short: "Teleburn one-way bridge service",
	Long:  "Builds, rehearses, and verifies teleburn retirements binding Solana tokens to Bitcoin inscriptions",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Path to config file (default: ~/.teleburnd/config.yaml)")
}

func main() {
	rootCmd.AddCommand(commands.NewServeCmd())
	rootCmd.AddCommand(commands.NewDeriveCmd())
	rootCmd.AddCommand(commands.NewMemoCmd())
	rootCmd.AddCommand(commands.NewVerifyCmd())
	rootCmd.AddCommand(commands.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
