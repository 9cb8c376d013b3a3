package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
)

// RunResult holds the outcome of a single ffmpeg invocation.
type RunResult struct {
	Stderr string
	Err    error
}

// ProgressFunc receives the encoder's output position in milliseconds as it
// advances. It is called from the process-reading goroutine and must not
// block, or it stalls the encoder's own stdout.
type ProgressFunc func(outTimeMs int64)

// Execute runs one compiled ffmpeg command to completion. The progress
// stream on stdout is parsed and forwarded to onProgress; stderr is
// captured for failure classification, tee'd to os.Stderr in real time when
// verbose.
//
// Cancelling ctx kills the process; the caller distinguishes cancellation
// from failure by checking ctx.Err alongside the returned Err.
func Execute(ctx context.Context, cfg config.Config, args []string, onProgress ProgressFunc) RunResult {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderrBuf bytes.Buffer
	if cfg.Verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return RunResult{Err: err}
	}

	readErr := readProgress(stdout, onProgress)

	err = cmd.Wait()
	if err == nil {
		// A dead progress pipe under a clean exit is still worth surfacing;
		// a process failure carries more signal and wins otherwise.
		err = readErr
	}
	return RunResult{Stderr: stderrBuf.String(), Err: err}
}

// readProgress forwards progress updates from r until it ends. The returned
// error is a read failure; EOF is the normal outcome and returns nil.
func readProgress(r io.Reader, onProgress ProgressFunc) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ms, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(ms)
		}
	}
	return scanner.Err()
}
