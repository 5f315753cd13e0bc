package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/lantern/internal/export"
	"github.com/Lllllllleong/lantern/internal/index"
)

var (
	dbPath        string
	pagesPath     string
	sequencesPath string
	searchQuery   index.Query
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and query the search index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the SQLite index from exported JSONL files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := index.BuildFromFiles(cmd.Context(), dbPath, pagesPath, sequencesPath, slog.Default()); err != nil {
			return err
		}
		ix, err := index.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer ix.Close()
		pages, withText, seqs, err := ix.Counts(cmd.Context())
		if err != nil {
			return err
		}
		renderIndexCounts(cmd.OutOrStdout(), dbPath, pages, withText, seqs)
		return nil
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search [QUERY...]",
	Short: "Search indexed pages by keyword and filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := index.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer ix.Close()

		q := searchQuery
		q.Terms = args
		hits, err := ix.Search(cmd.Context(), q)
		if err != nil {
			return err
		}
		renderHits(cmd.OutOrStdout(), hits)
		return nil
	},
}

var indexShowCmd = &cobra.Command{
	Use:   "show SEQUENCE_ID",
	Short: "Print one indexed sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := index.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer ix.Close()

		seq, err := ix.Sequence(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if seq == nil {
			return fmt.Errorf("sequence %q not found", args[0])
		}
		renderSequence(cmd.OutOrStdout(), seq)
		return nil
	},
}

func init() {
	defaultExports := "./data/outputs"
	indexCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/lantern.db", "SQLite index path")

	indexBuildCmd.Flags().StringVar(&pagesPath, "pages", filepath.Join(defaultExports, export.PagesFile), "pages.jsonl to index")
	indexBuildCmd.Flags().StringVar(&sequencesPath, "sequences", filepath.Join(defaultExports, export.SequencesFile), "sequences.jsonl to index")

	indexSearchCmd.Flags().StringVar(&searchQuery.DocType, "doc-type", "", "Only pages of this document type")
	indexSearchCmd.Flags().StringVar(&searchQuery.SequenceID, "sequence", "", "Only pages of this sequence")
	indexSearchCmd.Flags().StringVar(&searchQuery.EntityType, "entity-type", "", "Only pages with an entity of this type")
	indexSearchCmd.Flags().BoolVar(&searchQuery.TextOnly, "text-only", false, "Skip pages without usable OCR text")
	indexSearchCmd.Flags().IntVarP(&searchQuery.Limit, "limit", "n", 20, "Maximum number of hits")

	indexCmd.AddCommand(indexBuildCmd, indexSearchCmd, indexShowCmd)
	rootCmd.AddCommand(indexCmd)
}
