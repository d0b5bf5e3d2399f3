// Command idcardctl is the operator CLI: it parses ID lists, renders staff
// cards offline and checks the roster connection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "idcardctl",
	Short:         "Operator tools for the ID card generator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(parseIDsCmd, staffCardsCmd, rosterCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
