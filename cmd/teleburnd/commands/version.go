package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the teleburnd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("teleburnd", Version)
		},
	}
}
