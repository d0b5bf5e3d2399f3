package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/idcard-api/pkg/csvimport"
)

var parseIDsCmd = &cobra.Command{
	Use:   "parse-ids <file>",
	Short: "Print the student IDs detected in a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE:  runParseIDs,
}

func runParseIDs(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := csvimport.ReadRows(filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	ids, err := csvimport.ParseStudentIDRows(rows)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, id := range ids.Sorted() {
		fmt.Fprintln(out, id)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d student IDs\n", ids.Len())
	return nil
}
