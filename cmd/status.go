package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vscmirror/internal/config"
	"vscmirror/internal/database"
	"vscmirror/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows what the mirror currently holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runStatus()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
	cfg := config.GetConfig()
	if !utils.DirExists(cfg.ArtifactsDir) {
		return fmt.Errorf("artifacts directory %s does not exist", cfg.ArtifactsDir)
	}

	ledger, err := database.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("error opening ledger: %w", err)
	}
	defer ledger.Close()

	stats, err := ledger.Stats()
	if err != nil {
		return fmt.Errorf("error reading ledger: %w", err)
	}
	last, err := ledger.LastDownload()
	if err != nil {
		return fmt.Errorf("error reading ledger: %w", err)
	}

	extensionDirs, _ := utils.SubDirectories(cfg.ExtensionsDir())
	platforms, _ := utils.SubDirectories(cfg.InstallersDir())

	fmt.Printf("Artifacts: %s\n", cfg.ArtifactsDir)
	fmt.Printf("Extensions on disk: %s\n", humanize.Comma(int64(len(extensionDirs))))
	fmt.Printf("Installer platforms on disk: %d\n", len(platforms))
	for _, name := range []string{utils.RecommendationsFile, utils.MaliciousFile} {
		state := "missing"
		if info, err := os.Stat(filepath.Join(cfg.ArtifactsDir, name)); err == nil {
			state = humanize.Time(info.ModTime())
		}
		fmt.Printf("%s: %s\n", name, state)
	}
	if last.IsZero() {
		fmt.Println("Last download: never")
	} else {
		fmt.Printf("Last download: %s\n", humanize.Time(last))
	}

	if len(stats) == 0 {
		return nil
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tFILES\tIDENTITIES\tSIZE")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Kind, humanize.Comma(s.Count), humanize.Comma(s.Identities), humanize.Bytes(uint64(s.Bytes)))
	}
	return w.Flush()
}
