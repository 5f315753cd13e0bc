package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/lantern/internal/services"
)

var (
	splitOut      string
	splitSequence string
)

var splitCmd = &cobra.Command{
	Use:   "split PDF",
	Short: "Split a multi-page scan into single-page inputs and a manifest",
	Long: `Split a scanned PDF into one single-page PDF per page and write
manifest.csv next to them, threading the pages as one sequence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := services.SplitPDF(args[0], splitOut, splitSequence, slog.Default())
		if err != nil {
			return err
		}
		path := filepath.Join(splitOut, "manifest.csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create manifest: %w", err)
		}
		if err := services.WriteManifest(f, entries); err != nil {
			f.Close()
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d pages, manifest %s\n", successStyle.Render("split"), len(entries), path)
		return nil
	},
}

func init() {
	splitCmd.Flags().StringVarP(&splitOut, "out", "o", "./data/pages", "Directory for page files and manifest.csv")
	splitCmd.Flags().StringVar(&splitSequence, "sequence", "", "Sequence id for the pages (default: file name)")
	rootCmd.AddCommand(splitCmd)
}
