package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/configs"
	"github.com/NguyenDuy1910/chatbot/internal/config"
	"github.com/NguyenDuy1910/chatbot/internal/output"
)

func newInitCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .chatbot.yaml for the project",
		Long: `Write the commented configuration template to .chatbot.yaml in the
project directory. An existing file is kept unless --force is given, in
which case it is backed up first.`,
		Example: `  chatbot init
  chatbot init --force -C ~/notes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := g.projectDir()
			if err != nil {
				return err
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .chatbot.yaml")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := filepath.Join(dir, config.ProjectConfigName)

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warningf("%s already exists (use --force to overwrite)", path)
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Statusf("📦", "Backed up to %s", backup)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	out.Successf("Wrote %s", path)
	out.Status("", "Next: chatbot sync, then chatbot search \"your question\"")
	return nil
}
