// Package channels adapts inbound transports (interactive shell, Telegram,
// HTTP/WebSocket gateway) onto the session Hub, and delivers replies back
// out through each transport's own writer.
package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/session"
)

const (
	defaultReplPrompt    = "you> "
	cliChannelName       = "cli"
	cliLocalPeer         = "local"
	defaultDispatchQueue = 20
)

var errInputInterrupted = errors.New("input interrupted")

// CLIWriter fans replies for the local shell session out to stdout and also
// signals a per-turn completion channel the Listen loop blocks on, so the
// REPL only prints the next prompt once the actor has replied.
type CLIWriter struct {
	out      io.Writer
	sessions map[string]chan string
}

// NewCLIWriter creates a CLI response writer over out.
func NewCLIWriter(out io.Writer) *CLIWriter {
	return &CLIWriter{out: out, sessions: make(map[string]chan string)}
}

func (w *CLIWriter) turnChannel(sessionID string) chan string {
	ch, ok := w.sessions[sessionID]
	if !ok {
		ch = make(chan string, 1)
		w.sessions[sessionID] = ch
	}
	return ch
}

// WriteMessage implements session.ResponseWriter.
func (w *CLIWriter) WriteMessage(_ context.Context, sessionID, text string) error {
	fmt.Fprintf(w.out, "assistant> %s\n\n", text)
	select {
	case w.turnChannel(sessionID) <- text:
	default:
	}
	return nil
}

// CLIListener drives an interactive shell session through the session Hub.
type CLIListener struct {
	in  io.Reader
	out io.Writer

	rl       *readline.Instance
	fallback *bufio.Reader
}

// NewCLI creates a new CLI listener over stdin/stdout style streams.
func NewCLI(in io.Reader, out io.Writer) *CLIListener {
	return &CLIListener{in: in, out: out}
}

// Listen runs the interactive loop until EOF, /quit, /exit, or a fatal error.
func (c *CLIListener) Listen(ctx context.Context, hub *session.Hub, writer *CLIWriter) error {
	if hub == nil {
		return fmt.Errorf("session hub is required")
	}
	if err := c.ensureInputReady(); err != nil {
		return err
	}
	if c.rl != nil {
		defer c.rl.Close()
	}

	fmt.Fprintln(c.out, "Interactive mode. Type /quit or /exit to stop.")
	interruptCh := make(chan os.Signal, 1)
	signal.Notify(interruptCh, os.Interrupt)
	defer signal.Stop(interruptCh)

	turnDone := writer.turnChannel(cliSessionID())

	for {
		line, err := c.readLine(ctx)
		if err != nil {
			if errors.Is(err, errInputInterrupted) {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "/quit", "quit", "/exit", "exit":
			fmt.Fprintln(c.out, "Stopped.")
			return nil
		}

		fmt.Fprintln(c.out, "Thinking... Ctrl+C to return to the prompt")
		drainInterruptSignals(interruptCh)

		if err := hub.Dispatch(ctx, session.Message{SessionID: cliSessionID(), Text: input}); err != nil {
			logging.Logger().Error("message dispatch failed", "err", err)
			continue
		}

		// Ctrl+C here only returns control to the prompt; the turn keeps
		// running in the background since the actor owns its own
		// cancellation scope rather than the per-enqueue context.
		select {
		case <-turnDone:
		case <-interruptCh:
			fmt.Fprintln(c.out, "Still working in the background...")
		case <-ctx.Done():
			return nil
		}
	}
}

func cliSessionID() string { return cliChannelName + ":" + cliLocalPeer }

func (c *CLIListener) ensureInputReady() error {
	if c.rl != nil || c.fallback != nil {
		return nil
	}
	rl, err := newReadline(c.in, c.out)
	if err == nil {
		c.rl = rl
		return nil
	}
	c.fallback = bufio.NewReader(c.in)
	return nil
}

func (c *CLIListener) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.rl != nil {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				return "", errInputInterrupted
			}
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
		return line, nil
	}

	fmt.Fprint(c.out, defaultReplPrompt)
	line, err := c.fallback.ReadString('\n')
	if err != nil {
		if len(line) > 0 {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func drainInterruptSignals(interruptCh <-chan os.Signal) {
	for {
		select {
		case <-interruptCh:
		default:
			return
		}
	}
}

func newReadline(in io.Reader, out io.Writer) (*readline.Instance, error) {
	stdin, ok := in.(io.ReadCloser)
	if !ok {
		return nil, fmt.Errorf("stdin is not read-closer")
	}
	inFile, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(inFile.Fd())) {
		return nil, fmt.Errorf("stdin is not terminal")
	}
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return nil, fmt.Errorf("stdout is not terminal")
	}

	return readline.NewEx(&readline.Config{
		Prompt:          defaultReplPrompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".blufio_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           stdin,
		Stdout:          out,
		Stderr:          out,
	})
}
