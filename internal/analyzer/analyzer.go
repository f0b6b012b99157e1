// Package analyzer wraps the external PII analysis process. The process
// receives one argument, an absolute path to a directory of input files,
// and on success prints a single JSON array of per-file results to stdout.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// Result status discriminators reported by the analyzer per file.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Vulnerability is one finding reported by the analyzer for a file
type Vulnerability struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// FileResult is one element of the analyzer's output array. Only
// OriginalFileName and Status are required; everything else is optional.
type FileResult struct {
	OriginalFileName string          `json:"originalFileName"`
	Status           string          `json:"status"`
	Summary          string          `json:"summary,omitempty"`
	PIIDetected      map[string]int  `json:"piiDetected,omitempty"`
	KeyFindings      []string        `json:"keyFindings,omitempty"`
	Vulnerabilities  []Vulnerability `json:"vulnerabilities,omitempty"`
	CleansedFilePath string          `json:"cleansedFilePath,omitempty"`
	Message          string          `json:"message,omitempty"`
}

// StartError means the analyzer binary could not be started at all
// (missing executable, permission denied). Distinguished from a clean
// nonzero exit so callers can surface a configuration problem.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("analyzer could not be started: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError means the analyzer ran but exited nonzero. Stderr carries
// the diagnostic verbatim.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("analyzer exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("analyzer exited with code %d", e.ExitCode)
}

// OutputError means the analyzer exited zero but its stdout violated the
// contract (not a JSON array, or an element missing required fields).
// Raw output is never silently accepted.
type OutputError struct {
	Reason string
	Raw    string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("analyzer output rejected: %s", e.Reason)
}

// ErrTimeout is returned when the analyzer was killed because the
// dispatch deadline elapsed.
var ErrTimeout = errors.New("analyzer timed out and was terminated")

// Client defines analyzer behaviour. Satisfied by CLI; swapped for a
// fake in tests.
type Client interface {
	Analyze(ctx context.Context, inputDir string) ([]FileResult, error)
}

// CLI invokes the analyzer as a subprocess.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client for the given analyzer binary.
func NewCLI(binary string) *CLI {
	return &CLI{binary: binary}
}

// Analyze runs the analyzer against inputDir and returns the parsed
// per-file results. It blocks until the process exits or ctx expires;
// on expiry the process is killed and ErrTimeout is returned.
func (c *CLI) Analyze(ctx context.Context, inputDir string) ([]FileResult, error) {
	if inputDir == "" {
		return nil, errors.New("input directory required")
	}

	cmd := commandContext(ctx, c.binary, inputDir) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Err: err}
	}

	err := cmd.Wait()
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ExitError{
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}

	return ParseOutput(stdout.Bytes())
}

// ParseOutput strictly parses the analyzer's stdout. The payload must be
// a JSON array and every element must carry originalFileName and a known
// status discriminator.
func ParseOutput(raw []byte) ([]FileResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &OutputError{Reason: "empty output", Raw: string(raw)}
	}

	var results []FileResult
	if err := json.Unmarshal(trimmed, &results); err != nil {
		return nil, &OutputError{Reason: fmt.Sprintf("not a JSON array: %v", err), Raw: string(raw)}
	}

	for i, r := range results {
		if r.OriginalFileName == "" {
			return nil, &OutputError{
				Reason: fmt.Sprintf("element %d missing originalFileName", i),
				Raw:    string(raw),
			}
		}
		if r.Status != StatusCompleted && r.Status != StatusError {
			return nil, &OutputError{
				Reason: fmt.Sprintf("element %d has unknown status %q", i, r.Status),
				Raw:    string(raw),
			}
		}
	}

	return results, nil
}
