package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vscmirror/internal/config"
	"vscmirror/internal/database"
	"vscmirror/internal/mirror"
	"vscmirror/internal/utils"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete [PUBLISHER.NAME]",
	Short: "Removes a mirrored extension and all of its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDelete(args[0])
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(identity string) error {
	cfg := config.GetConfig()

	dir, err := findExtensionDir(cfg.ExtensionsDir(), identity)
	if err != nil {
		return err
	}

	ledger, err := database.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("error opening ledger: %w", err)
	}
	defer ledger.Close()

	identity = filepath.Base(dir)
	rows, err := ledger.ListByIdentity(identity)
	if err != nil {
		return fmt.Errorf("error reading ledger: %w", err)
	}
	var size int64
	for _, r := range rows {
		size += r.Size
	}

	fmt.Printf("Found extension for deletion:\n")
	fmt.Printf("  Identity: %s\n", identity)
	fmt.Printf("  Directory: %s\n", dir)
	fmt.Printf("  Files: %d (%s)\n", len(rows), humanize.Bytes(uint64(size)))

	if !deleteYes {
		fmt.Printf("\n⚠️  WARNING: This action will permanently delete the extension and all associated files!\n")
		fmt.Printf("Continue with deletion? (y/N): ")

		var response string
		fmt.Scanln(&response)

		if response != "y" && response != "Y" {
			fmt.Println("Deletion cancelled")
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("error deleting extension: %w", err)
	}
	if _, err := ledger.DeleteByIdentity(identity); err != nil {
		return fmt.Errorf("error updating ledger: %w", err)
	}
	if err := mirror.SignalUpdated(cfg.ArtifactsDir); err != nil {
		return fmt.Errorf("error signalling gateway: %w", err)
	}

	fmt.Printf("✅ Extension %s deleted\n", identity)
	return nil
}

// findExtensionDir locates the mirrored directory of identity, ignoring
// case the way the gallery does.
func findExtensionDir(extensionsDir, identity string) (string, error) {
	if identity == "" || identity == "." || identity == ".." || strings.ContainsAny(identity, `/\`) {
		return "", fmt.Errorf("invalid extension identity %q", identity)
	}
	dirs, err := utils.SubDirectories(extensionsDir)
	if err != nil {
		return "", fmt.Errorf("error reading extensions directory: %w", err)
	}
	for _, d := range dirs {
		if strings.EqualFold(d, identity) {
			return filepath.Join(extensionsDir, d), nil
		}
	}
	return "", fmt.Errorf("extension %s not found", identity)
}
