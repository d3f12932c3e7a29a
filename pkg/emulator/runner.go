// Package emulator wraps invocations of the external DOSBox-X process.
// Every run blocks until the child exits and captures its combined output
// to a per-VM transcript file; the transcript is both the operator's
// diagnostic artifact and the input for behavioral classification.
package emulator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// exitMarkerPrefix trails every transcript that ran to completion. A
// transcript without it means the run was interrupted and must be treated
// as unclean by callers.
const exitMarkerPrefix = "=== dosbox-x exit status "

// Runner executes one emulator session. Implementations block until the
// child process exits.
type Runner interface {
	// Run invokes the emulator with args, writing combined output to the
	// transcript file at transcriptPath.
	Run(ctx context.Context, transcriptPath string, args ...string) error

	// Binary returns the resolved emulator executable path.
	Binary() string
}

// LocalRunner runs DOSBox-X found on the local host.
type LocalRunner struct {
	binary string

	// Mirror additionally copies the child's output to the controlling
	// terminal while still capturing the transcript.
	Mirror bool
}

// NewLocalRunner resolves the emulator executable. A name is looked up on
// PATH; anything containing a path separator is used as-is.
func NewLocalRunner(binary string, mirror bool) (*LocalRunner, error) {
	if strings.ContainsRune(binary, os.PathSeparator) {
		if _, err := os.Stat(binary); err != nil {
			return nil, errors.Errorf("emulator binary not found at %s: %w", binary, err)
		}
		return &LocalRunner{binary: binary, Mirror: mirror}, nil
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.Errorf("finding %s executable: %w", binary, err)
	}
	return &LocalRunner{binary: path, Mirror: mirror}, nil
}

func (r *LocalRunner) Binary() string {
	return r.binary
}

// Run executes one emulator session. The transcript file is truncated,
// receives the child's combined output, and gains a trailing exit marker
// once the child has exited. A missing marker therefore identifies an
// interrupted run.
func (r *LocalRunner) Run(ctx context.Context, transcriptPath string, args ...string) error {
	logger := zerolog.Ctx(ctx)

	transcript, err := os.Create(transcriptPath)
	if err != nil {
		return errors.Errorf("creating transcript file: %w", err)
	}
	defer transcript.Close()

	var out io.Writer = transcript
	if r.Mirror {
		out = io.MultiWriter(transcript, os.Stdout)
	}

	logger.Debug().
		Str("binary", r.binary).
		Strs("args", args).
		Str("transcript", transcriptPath).
		Msg("Starting emulator session")

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	runErr := cmd.Run()

	status := 0
	if cmd.ProcessState != nil {
		status = cmd.ProcessState.ExitCode()
	}
	fmt.Fprintf(transcript, "%s%d ===\n", exitMarkerPrefix, status)

	if runErr != nil {
		return errors.Errorf("emulator session failed (transcript: %s): %w", transcriptPath, runErr)
	}

	logger.Debug().Int("status", status).Msg("Emulator session finished")
	return nil
}

// TranscriptComplete reports whether the transcript at path carries the
// trailing exit marker of a run that finished cleanly.
func TranscriptComplete(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 {
		return false
	}
	return strings.HasPrefix(lines[len(lines)-1], exitMarkerPrefix)
}

// ScanTranscript reports whether the transcript at path contains the given
// signature string.
func ScanTranscript(path, signature string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Errorf("reading transcript %s: %w", path, err)
	}
	return strings.Contains(string(data), signature), nil
}
