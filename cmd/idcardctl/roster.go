package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/idcard-api/internal/repository"
	"github.com/noah-isme/idcard-api/internal/service"
	"github.com/noah-isme/idcard-api/pkg/config"
	"github.com/noah-isme/idcard-api/pkg/logger"
)

var rosterOutput string

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Roster API utilities",
}

var rosterCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the roster once and report the result",
	RunE:  runRosterCheck,
}

func init() {
	rosterCheckCmd.Flags().StringVarP(&rosterOutput, "output", "o", "yaml", "output format: yaml or json")
	rosterCmd.AddCommand(rosterCheckCmd)
}

func runRosterCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	repo, err := repository.NewRosterRepository(cfg.Roster, nil, logr)
	if err != nil {
		return err
	}
	svc := service.NewRosterService(repo, nil, nil, logr, service.RosterServiceConfig{})
	diag := svc.Diagnostics(cmd.Context())

	var out []byte
	switch rosterOutput {
	case "json":
		out, err = json.MarshalIndent(diag, "", "  ")
	case "yaml":
		out, err = yaml.Marshal(diag)
	default:
		return fmt.Errorf("unknown output format %q", rosterOutput)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !diag.Success {
		return fmt.Errorf("%s", diag.Message)
	}
	return nil
}
