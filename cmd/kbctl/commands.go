package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load documents into the knowledge base and index them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		docs := make([]*domain.KnowledgeDocument, 0, len(args))
		for _, path := range args {
			doc, err := uploadFile(cmd, app.Ingest, path)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		app.Tasks.Wait()

		failed := 0
		results := make([]*domain.KnowledgeDocument, 0, len(docs))
		for _, doc := range docs {
			current, err := app.Ingest.GetDocument(cmd.Context(), doc.ID)
			if err != nil {
				return err
			}
			if current.Status != domain.KnowledgeStatusReady {
				failed++
			}
			results = append(results, current)
		}

		if asJSON(cmd) {
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
		} else {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILE\tSTATUS\tENTRIES\tERROR")
			for _, doc := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", doc.ID, doc.Filename, doc.Status, doc.EntryCount, doc.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed to index", failed, len(results))
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the knowledge base source",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		keywords, _ := cmd.Flags().GetStringSlice("keyword")
		query := domain.ProblemQuery{
			Description: strings.Join(args, " "),
			Keywords:    domain.NormalizeKeywords(keywords),
		}
		results, err := app.Knowledge.Search(cmd.Context(), query, limit)
		if err != nil {
			return err
		}

		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), results)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tTITLE\tFILE\tSOLUTION")
		for _, res := range results {
			fmt.Fprintf(w, "%.2f\t%s\t%s\t%s\n",
				res.RelevanceScore,
				truncate(res.Title, 60),
				res.MetadataString("file_name"),
				truncate(res.Solution, 80),
			)
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		stats, err := app.Ingest.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), stats)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "files: %d\nentries: %d\nvector search: %t\n\n", stats.TotalFiles, stats.TotalEntries, stats.VectorAvailable)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSTATUS\tENTRIES\tUPDATED")
		for _, file := range stats.Files {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", file.Filename, file.Status, file.Entries, file.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().Int("limit", domain.SourceRAG.FetchLimit(), "maximum number of results")
	searchCmd.Flags().StringSlice("keyword", nil, "additional keyword, repeatable")

	rootCmd.AddCommand(ingestCmd, searchCmd, statsCmd)
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func mimeTypeFor(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func uploadFile(cmd *cobra.Command, ingest ports.KnowledgeIngestor, path string) (*domain.KnowledgeDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := ingest.Upload(cmd.Context(), filepath.Base(path), mimeTypeFor(path), f)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	return doc, nil
}
