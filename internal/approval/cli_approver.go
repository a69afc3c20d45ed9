package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// CLIApprover prompts for y/n approvals on a reader/writer pair such as
// stdin/stdout. The supervisor does not wire it; every channel, the shell
// included, uses AutoApprover.
type CLIApprover struct {
	in  *bufio.Reader
	out io.Writer
}

// NewCLIApprover creates a CLI approver over arbitrary readers/writers.
func NewCLIApprover(in io.Reader, out io.Writer) *CLIApprover {
	if reader, ok := in.(*bufio.Reader); ok {
		return &CLIApprover{in: reader, out: out}
	}
	return &CLIApprover{in: bufio.NewReader(in), out: out}
}

// RequestApproval prompts once and returns Approved or Denied. Any answer
// other than y/yes is treated as a denial, including input errors.
func (a *CLIApprover) RequestApproval(_ context.Context, req Request) (Decision, error) {
	if _, err := fmt.Fprintf(a.out, "approve tool %s? %s [y/N]: ", req.Tool, req.Description); err != nil {
		return Denied, err
	}

	answer, err := a.in.ReadString('\n')
	if err != nil {
		return Denied, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return Approved, nil
	default:
		return Denied, nil
	}
}
