package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/blufioerr"
	"github.com/blufio/blufio/internal/config"
)

// skillManifest describes an external tool the operator wants Blufio to be
// able to call. This is a catalog, not a sandboxed plugin runtime: install
// only records the manifest on disk for a future registry loader.
type skillManifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
}

func skillsDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "skills")
}

func newSkillCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "skill", Short: "Manage the external-tool manifest catalog"}
	cmd.AddCommand(newSkillInitCmd())
	cmd.AddCommand(newSkillInstallCmd())
	cmd.AddCommand(newSkillListCmd())
	return cmd
}

func newSkillInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Write a starter manifest for a new external tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			name := args[0]
			dir := skillsDir(cfg)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return blufioerr.New(blufioerr.KindInternal, "create skills directory", err)
			}

			manifest := skillManifest{
				Name:        name,
				Description: "describe what this tool does",
				Command:     "/path/to/executable",
				Args:        []string{"--flag", "value"},
			}
			path := filepath.Join(dir, name+".json")
			if _, err := os.Stat(path); err == nil {
				return blufioerr.New(blufioerr.KindConfig, fmt.Sprintf("manifest %q already exists", path), nil)
			}
			data, err := json.MarshalIndent(manifest, "", "  ")
			if err != nil {
				return blufioerr.New(blufioerr.KindInternal, "marshal manifest", err)
			}
			if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
				return blufioerr.New(blufioerr.KindInternal, "write manifest", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func newSkillInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <manifest-path>",
		Short: "Validate and copy a manifest into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return blufioerr.New(blufioerr.KindConfig, "read manifest", err)
			}
			var manifest skillManifest
			if err := json.Unmarshal(raw, &manifest); err != nil {
				return blufioerr.New(blufioerr.KindConfig, "parse manifest as JSON", err)
			}
			if strings.TrimSpace(manifest.Name) == "" || strings.TrimSpace(manifest.Command) == "" {
				return blufioerr.New(blufioerr.KindConfig, "manifest requires a non-empty name and command", nil)
			}

			// A manifest may give "command" as a single shell-style line
			// ("curl -s https://example.com") instead of pre-split argv; if
			// Args is empty, tokenize it the same way the shell would.
			if len(manifest.Args) == 0 {
				tokens, err := shlex.Split(manifest.Command)
				if err != nil {
					return blufioerr.New(blufioerr.KindConfig, "command is not valid shell syntax", err)
				}
				if len(tokens) > 1 {
					manifest.Command = tokens[0]
					manifest.Args = tokens[1:]
				}
			}

			normalized, err := json.MarshalIndent(manifest, "", "  ")
			if err != nil {
				return blufioerr.New(blufioerr.KindInternal, "marshal manifest", err)
			}

			dir := skillsDir(cfg)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return blufioerr.New(blufioerr.KindInternal, "create skills directory", err)
			}
			dest := filepath.Join(dir, manifest.Name+".json")
			if err := os.WriteFile(dest, append(normalized, '\n'), 0o644); err != nil {
				return blufioerr.New(blufioerr.KindInternal, "write manifest", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %q -> %s\n", manifest.Name, dest)
			return nil
		},
	}
}

func newSkillListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed external-tool manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir := skillsDir(cfg)
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "no skills installed")
					return nil
				}
				return blufioerr.New(blufioerr.KindInternal, "read skills directory", err)
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
					continue
				}
				raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
				if err != nil {
					continue
				}
				var manifest skillManifest
				if err := json.Unmarshal(raw, &manifest); err != nil {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", manifest.Name, manifest.Description)
			}
			return nil
		},
	}
}
