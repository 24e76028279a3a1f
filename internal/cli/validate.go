package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/storesync/internal/config"
	"github.com/roach88/storesync/internal/notify"
)

// ValidationIssue is one problem found in a configuration file.
type ValidationIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	File       string            `json:"file"`
	Recipients int               `json:"recipients,omitempty"`
	Errors     []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file without running",
		Long: `Check a storesync configuration file against its schema and load the
alert recipient list it names. Nothing is opened or written.

Defaults to the file given by --config.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = DefaultConfigPath
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return outputValidateError(formatter, ErrCodeConfigMissing, fmt.Sprintf("cannot read %s: %v", path, err))
	}
	formatter.VerboseLog("Validating %s (%d bytes)", path, len(data))

	result := ValidationResult{File: path}

	cfg, err := config.Parse(path, data)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, is := range verr.Issues {
				issue := ValidationIssue{Code: ErrCodeConfigInvalid, Path: is.Path, Message: is.Message}
				if is.Pos.IsValid() {
					issue.Line = is.Pos.Line()
					issue.Column = is.Pos.Column()
				}
				result.Errors = append(result.Errors, issue)
			}
		} else {
			result.Errors = append(result.Errors, ValidationIssue{Code: ErrCodeConfigInvalid, Message: err.Error()})
		}
		return outputValidationErrors(formatter, result)
	}

	if cfg.Alerts.Enabled() {
		recipients, err := notify.LoadRecipients(cfg.Alerts.RecipientsFile)
		if err != nil {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    ErrCodeRecipientsFailed,
				Path:    "alerts.recipients_file",
				Message: err.Error(),
			})
			return outputValidationErrors(formatter, result)
		}
		result.Recipients = len(recipients)
		formatter.VerboseLog("Loaded %d alert recipient(s)", len(recipients))
	}

	result.Valid = true
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every issue found in the file.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", result.File, err.Line, err.Column)
		}
		if err.Path != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Path, err.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
