package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/pipeline"
)

var (
	scriptDownload bool
	scriptLayers   []string
)

var scriptCmd = &cobra.Command{
	Use:   "script <address> [y|n]",
	Short: "Generate the AutoCAD script for an address",
	Long: "Geocodes the address, optionally downloads the locality's layers and writes the import script. " +
		"Exit status is 0 when done, 2 when the address is not found, 3 when the city or county cannot be identified.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("script"); err != nil {
			return err
		}
		req, err := parseScriptArgs(args, scriptDownload, scriptLayers)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		env, err := initRunner(ctx, out)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Runner.Run(ctx, req)
		if err != nil {
			return err
		}
		return reportOutcome(out, res.Outcome)
	},
}

// parseScriptArgs builds a request from the positional address, the
// optional y/n download argument and the flags. Either source may enable
// downloading.
func parseScriptArgs(args []string, download bool, layers []string) (pipeline.Request, error) {
	req := pipeline.Request{
		Address:  strings.TrimSpace(args[0]),
		Download: download,
		Layers:   layers,
	}
	if req.Address == "" {
		return req, eris.New("address must not be empty")
	}
	if len(args) > 1 && strings.HasPrefix(strings.ToLower(strings.TrimSpace(args[1])), "y") {
		req.Download = true
	}
	return req, nil
}

// reportOutcome prints the final signal line and converts non-done outcomes
// into their exit codes.
func reportOutcome(out io.Writer, outcome model.Outcome) error {
	switch outcome {
	case model.OutcomeDone:
		fmt.Fprintln(out, "DONE") //nolint:errcheck
		return nil
	case model.OutcomeAddressNotFound:
		return &exitError{code: outcome.ExitCode(), msg: "address not found"}
	case model.OutcomeLocalityUnresolved:
		return &exitError{code: outcome.ExitCode(), msg: "locality unresolved"}
	default:
		return eris.Errorf("run ended with outcome %s", outcome)
	}
}

func init() {
	scriptCmd.Flags().BoolVar(&scriptDownload, "download", false, "download layers (same as a trailing y argument)")
	scriptCmd.Flags().StringSliceVar(&scriptLayers, "layers", nil, "only fetch these layers (comma separated)")
	rootCmd.AddCommand(scriptCmd)
}
