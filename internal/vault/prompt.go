package vault

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// PromptPassphrase reads the vault passphrase from VAULT_KEY if set, falling
// back to an interactive, non-echoing terminal prompt.
func PromptPassphrase(out io.Writer) (string, error) {
	if v, ok := PassphraseFromEnv(); ok {
		return v, nil
	}

	fmt.Fprint(out, "Vault passphrase: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// PromptPassphraseWithConfirm prompts twice and errors if the two entries
// differ, used by `vault init`.
func PromptPassphraseWithConfirm(out io.Writer) (string, error) {
	if v, ok := PassphraseFromEnv(); ok {
		return v, nil
	}

	first, err := PromptPassphrase(out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Confirm passphrase: ")
	second, err := promptRaw(out)
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

func promptRaw(out io.Writer) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return string(raw), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return trimNewline(line), nil
}
