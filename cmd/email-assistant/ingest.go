package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdulmalikadeyemo/email-assistant/internal/app"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file or directory>...",
	Short: "Add documents to the knowledge base",
	Long: `Splits text and markdown files into overlapping chunks, embeds them and
stores them in the configured index. Directories are walked recursively.
Chunk IDs are "<path>#<n>", so re-ingesting a file replaces its chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		exts, _ := cmd.Flags().GetStringSlice("ext")

		docs, err := collectDocuments(args, exts)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no files with extensions %v found", exts)
		}

		splitter, err := app.NewSplitter(cfg.Retrieval)
		if err != nil {
			return err
		}
		chunks := splitter.SplitDocuments(docs)

		r, err := app.NewRetriever(cfg.Retrieval)
		if err != nil {
			return err
		}
		defer r.Index().Close()

		n, err := r.Ingest(cmd.Context(), chunks)
		if err != nil {
			return err
		}
		total, err := r.Index().Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %d files (%d documents in index)\n", n, len(docs), total)
		return nil
	},
}

// collectDocuments reads every file under paths whose extension is in exts.
// Document IDs are the file paths.
func collectDocuments(paths, exts []string) ([]retrieval.Document, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower("."+strings.TrimPrefix(e, "."))] = true
	}

	var docs []retrieval.Document
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !want[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			docs = append(docs, retrieval.Document{
				ID:       path,
				Content:  string(data),
				Metadata: map[string]any{"source": path},
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func init() {
	ingestCmd.Flags().StringSlice("ext", []string{"md", "txt"}, "File extensions to ingest")
	rootCmd.AddCommand(ingestCmd)
}
