package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // analysis could not complete
	ExitCommandError = 2 // invalid arguments, config, query or platform
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err; errors that are not an
// ExitError map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success writes data as JSON, or calls text to render it.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error writes err in the configured format.
func (f *OutputFormatter) Error(err error) {
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: err.Error()})
		return
	}
	fmt.Fprintf(f.Writer, "Error: %v\n", err)
}

// writeAnalysis renders an analysis for terminals. It leaves out the ID and
// timings so repeated runs print the same text.
func writeAnalysis(w io.Writer, res *analyzer.Result) {
	fmt.Fprintf(w, "Platform: %s\n", res.Platform)
	fmt.Fprintf(w, "Query:    %s\n", res.Query)
	fmt.Fprintf(w, "Yield:    %d (%s)\n", res.Yield, res.Range)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Node yields:")
	for _, e := range res.Entries {
		fmt.Fprintf(w, "  [%d] %-4s %8d  %s\n", e.Index, e.Operator, e.Yield, e.Query)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Suggestions:")
	for _, s := range res.Suggestions {
		for _, line := range strings.Split(s, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
