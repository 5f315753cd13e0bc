package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/lantern/internal/app"
	"github.com/Lllllllleong/lantern/internal/config"
	"github.com/Lllllllleong/lantern/internal/gcp"
	"github.com/Lllllllleong/lantern/internal/services"
)

var (
	manifestPath string
	configPath   string
	exportDir    string
	imageRoot    string
	runID        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run OCR, threading and enrichment over a manifest",
	Long: `Run the full pipeline over a CSV manifest and write pages.jsonl and
sequences.jsonl to the export directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if exportDir != "" {
			cfg.Export.Dir = exportDir
		}
		if imageRoot != "" {
			cfg.ImageRoot = imageRoot
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []app.Option
		if gcp.IsGCSURI(manifestPath) {
			opts = append(opts, app.WithStorage())
		}
		rt, err := app.New(ctx, cfg, opts...)
		if err != nil {
			return err
		}
		defer rt.Close()

		m, err := rt.Manifests().Load(ctx, manifestPath)
		if err != nil {
			return err
		}
		m.RunID = runID
		if m.RunID == "" {
			m.RunID = services.NewRunID()
		}

		res, err := rt.Pipeline(cfg).Run(ctx, m)
		if err != nil {
			return err
		}
		renderRunSummary(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Manifest CSV (local path or gs:// URI)")
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment overrides still apply)")
	runCmd.Flags().StringVarP(&exportDir, "export-dir", "o", "", "Directory for pages.jsonl and sequences.jsonl")
	runCmd.Flags().StringVar(&imageRoot, "image-root", "", "Prefix for relative image paths")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run id (a new ULID when empty)")
	_ = runCmd.MarkFlagRequired("manifest")

	rootCmd.AddCommand(runCmd)
}
