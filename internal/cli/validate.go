package cli

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/jmap/internal/config"
	"github.com/roach88/jmap/internal/harness"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config bool // files are client configs, not scenarios
}

// FileValidation is the validation result for one file.
type FileValidation struct {
	Path   string   `json:"path"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scenario or config files",
		Long: `Validate scenario files, or client config files with --config, without
running anything. Every problem in a file is reported, not just the first.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Config, "config", false, "validate client config files")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	results := make([]FileValidation, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		var err error
		if opts.Config {
			_, err = config.Load(path)
		} else {
			_, err = harness.LoadScenario(path)
		}

		r := FileValidation{Path: path, Valid: err == nil, Errors: problems(err)}
		if !r.Valid {
			invalid++
			f.Textf("✗ %s", path)
			for _, p := range r.Errors {
				f.Textf("  %s", p)
			}
		} else {
			f.Textf("✓ %s", path)
		}
		results = append(results, r)
	}

	if opts.Format == "json" {
		resp := Response{Status: "ok", Data: results}
		if invalid > 0 {
			resp.Status = "error"
			resp.Error = &ResponseError{Code: "E_INVALID", Message: fmt.Sprintf("%d file(s) invalid", invalid)}
		}
		if err := f.JSON(resp); err != nil {
			return err
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", invalid))
	}
	return nil
}

// problems flattens an aggregated error into one message per problem.
func problems(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
