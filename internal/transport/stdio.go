package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vitalink/vitalink/internal/jsonrpc"
	"github.com/vitalink/vitalink/internal/logging"
)

const stdioShutdownGrace = 2 * time.Second

// StdioBinding runs a provider as a child process and exchanges
// Content-Length framed payloads over its standard streams.
type StdioBinding struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

// OpenStdio splits the launch command into a program and arguments, expands a
// leading ~/ in any argument, and starts the child with the parent's
// environment. A command with no program token fails before any spawn.
func OpenStdio(command string) (*StdioBinding, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("launch command has no program token")
	}

	program := fields[0]
	args, err := expandHomeArgs(fields[1:])
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(program, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("provider stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("provider stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		logging.LogEvent("provider process failed to start: %v", err)
		return nil, fmt.Errorf("start provider process: %w", err)
	}
	logging.LogEvent("provider process started: program=%s pid=%d", program, cmd.Process.Pid)

	return &StdioBinding{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReader(stdout),
		writer: bufio.NewWriter(stdin),
	}, nil
}

// expandHomeArgs replaces a leading ~/ segment in each argument with the
// caller's home directory.
func expandHomeArgs(args []string) ([]string, error) {
	expanded := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", arg, err)
			}
			arg = filepath.Join(home, arg[2:])
		}
		expanded[i] = arg
	}
	return expanded, nil
}

// Send writes one framed payload to the child's stdin.
func (b *StdioBinding) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return jsonrpc.WriteFrame(b.writer, payload)
}

// Receive reads one framed payload from the child's stdout. The blocking read
// runs in a goroutine so a cancelled context returns promptly.
func (b *StdioBinding) Receive(ctx context.Context) ([]byte, error) {
	type result struct {
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := jsonrpc.ReadFrame(b.reader)
		done <- result{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.payload, res.err
	}
}

// Close shuts down the child: stdin is closed so a well-behaved provider
// exits on EOF, then the process is killed after a short grace period.
// Close is idempotent.
func (b *StdioBinding) Close() error {
	b.closeOnce.Do(func() {
		if b.stdin != nil {
			_ = b.stdin.Close()
		}

		if b.cmd != nil {
			done := make(chan error, 1)
			go func() {
				done <- b.cmd.Wait()
			}()
			select {
			case err := <-done:
				b.closeErr = err
			case <-time.After(stdioShutdownGrace):
				_ = b.cmd.Process.Kill()
				b.closeErr = <-done
			}
		}
	})
	return b.closeErr
}
