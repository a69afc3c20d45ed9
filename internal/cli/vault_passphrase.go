package cli

import (
	"io"

	"github.com/blufio/blufio/internal/blufioerr"
	"github.com/blufio/blufio/internal/vault"
)

// resolvePassphrase prefers VAULT_KEY so serve/shell can run unattended
// under a process supervisor; it only prompts interactively when the
// command is run directly at a terminal and no env var is set.
func resolvePassphrase(out io.Writer, interactive bool) (string, error) {
	if pass, ok := vault.PassphraseFromEnv(); ok {
		return pass, nil
	}
	if !interactive {
		return "", blufioerr.New(blufioerr.KindVault, "VAULT_KEY is not set and this command is non-interactive", nil)
	}
	return vault.PromptPassphrase(out)
}
