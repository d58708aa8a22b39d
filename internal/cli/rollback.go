package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pastoralist/pkg/manifest"
)

// rollbackCommand creates the rollback command.
func (c *CLI) rollbackCommand() *cobra.Command {
	var manifestPath, backup string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore package.json from an auto-fix backup",
		Long: `Rollback restores the manifest from the newest backup written by
"check --fix", or from the backup named with --backup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(manifestPath)
			if err != nil {
				return err
			}
			restored, err := manifest.Rollback(cmd.Context(), path, backup)
			if err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Debug("restored manifest", "from", restored, "to", path)
			printSuccess("Restored %s", path)
			printDetail("From: %s", restored)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "package.json", "manifest to restore")
	cmd.Flags().StringVar(&backup, "backup", "", "backup file to restore (default: newest)")
	return cmd
}

// backupsCommand creates the backups command.
func (c *CLI) backupsCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List manifest backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(manifestPath)
			if err != nil {
				return err
			}
			backups, err := manifest.ListBackups(path)
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				printInfo("No backups for %s", path)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBackupTable(backups, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "package.json", "manifest whose backups to list")
	return cmd
}

func renderBackupTable(backups []manifest.Backup, now time.Time) string {
	rows := make([][]string, len(backups))
	for i, b := range backups {
		rows[i] = []string{filepath.Base(b.Path), b.Created.Local().Format(time.DateTime), formatAge(now.Sub(b.Created))}
	}
	return newTable("Backup", "Created", "Age").Rows(rows...).Render()
}

// formatAge renders a duration as a coarse relative age.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
