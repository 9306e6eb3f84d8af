// Command peermatch resolves ISIN instrument identifiers to legal
// entities, enriches them with sector facts from Wikidata, and serves
// "find companies similar to X" queries over a vector similarity index.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/fintel/peermatch/internal/config"
	"github.com/fintel/peermatch/internal/embed"
	"github.com/fintel/peermatch/internal/engine"
	"github.com/fintel/peermatch/internal/storage/sqlite"
	"github.com/fintel/peermatch/internal/vector"
	"github.com/fintel/peermatch/internal/wikidata"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "peermatch",
		Short:         "Company similarity matching by ISIN",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "peermatch.yaml", "Path to the YAML config file")

	cmd.AddCommand(
		initCommand(&configPath),
		loadCommand(&configPath),
		searchCommand(&configPath),
		vectordbCommand(&configPath),
	)

	return cmd
}

func initCommand(configPath *string) *cobra.Command {
	var (
		target   string
		recreate bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the identity store and/or the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			if target != "sqlite" && target != "vectordb" && target != "all" {
				return fmt.Errorf("invalid target %q: must be sqlite, vectordb or all", target)
			}

			if target == "sqlite" || target == "all" {
				if err := sqlite.InitDB(cfg.Storage.DBPath, recreate); err != nil {
					return err
				}
				fmt.Printf("Initialized identity store at %s\n", cfg.Storage.DBPath)
			}

			if target == "vectordb" || target == "all" {
				if err := vector.InitDB(cfg.Vector.DSN, cfg.Vector.Collection, cfg.Vector.EmbeddingModel, recreate); err != nil {
					return err
				}
				fmt.Printf("Initialized vector collection %q\n", cfg.Vector.Collection)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "all", "Which store to initialize: sqlite, vectordb or all")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate existing tables")

	return cmd
}

func loadCommand(configPath *string) *cobra.Command {
	var (
		isinMapCSV  string
		metadataCSV string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk-load GLEIF reference data into the identity store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if isinMapCSV == "" && metadataCSV == "" {
				return fmt.Errorf("nothing to load: pass --isin-map and/or --metadata")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			store, err := sqlite.NewEntityStore(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()

			if metadataCSV != "" {
				n, err := store.LoadLEIMetadata(ctx, metadataCSV)
				if err != nil {
					return err
				}
				fmt.Printf("Loaded %d entity records\n", n)
			}

			if isinMapCSV != "" {
				n, err := store.LoadISINMap(ctx, isinMapCSV)
				if err != nil {
					return err
				}
				fmt.Printf("Loaded %d ISIN mappings\n", n)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&isinMapCSV, "isin-map", "", "GLEIF ISIN-LEI relationship CSV")
	cmd.Flags().StringVar(&metadataCSV, "metadata", "", "GLEIF golden-copy CSV")

	return cmd
}

func searchCommand(configPath *string) *cobra.Command {
	var (
		isin      string
		isins     []string
		topK      int
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find companies similar to the entity behind an ISIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			matcher, cleanup, err := buildMatcher(*configPath, batchSize)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			for _, query := range gatherISINs(isin, isins) {
				companies, distances, err := matcher.FindMatches(ctx, query, topK)
				if err != nil {
					return err
				}
				for i, company := range companies {
					fmt.Printf("Company: %s, Distance: %.4f\n", company, distances[i])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&isin, "isin", "", "Single ISIN to search for")
	cmd.Flags().StringSliceVar(&isins, "isins", nil, "Comma-separated ISINs to search for")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Number of neighbors to return")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Knowledge-base batch size (0 = config default)")
	cmd.MarkFlagsOneRequired("isin", "isins")
	cmd.MarkFlagsMutuallyExclusive("isin", "isins")

	return cmd
}

func vectordbCommand(configPath *string) *cobra.Command {
	var (
		isin      string
		isins     []string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "vectordb",
		Short: "Insert company embeddings into the similarity index",
		RunE: func(cmd *cobra.Command, args []string) error {
			matcher, cleanup, err := buildMatcher(*configPath, batchSize)
			if err != nil {
				return err
			}
			defer cleanup()

			targets := gatherISINs(isin, isins)
			if err := matcher.InsertEmbeddings(context.Background(), targets...); err != nil {
				return err
			}
			fmt.Printf("Successfully stored embeddings for: %v\n", targets)
			return nil
		},
	}

	cmd.Flags().StringVar(&isin, "isin", "", "Single ISIN to embed")
	cmd.Flags().StringSliceVar(&isins, "isins", nil, "Comma-separated ISINs to embed")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Knowledge-base batch size (0 = config default)")
	cmd.MarkFlagsOneRequired("isin", "isins")
	cmd.MarkFlagsMutuallyExclusive("isin", "isins")

	return cmd
}

// buildMatcher wires the full pipeline and probes both stores before any
// operation runs. The returned cleanup closes the store and index handles.
func buildMatcher(configPath string, batchSize int) (*engine.Matcher, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if batchSize > 0 {
		cfg.Wikidata.BatchSize = batchSize
	}

	store, err := sqlite.NewEntityStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, err
	}

	generator := embed.NewOllamaClient(embed.OllamaConfig{
		BaseURL: cfg.Vector.EmbeddingURL,
		Model:   cfg.Vector.EmbeddingModel,
	})

	index, err := vector.NewPostgresIndex(cfg.Vector.DSN, generator, cfg.Vector.Collection)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := index.Close(); err != nil {
			log.Printf("peermatch: failed to close vector index: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("peermatch: failed to close identity store: %v", err)
		}
	}

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := index.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	client := wikidata.NewClient(wikidata.Config{
		Endpoint:  cfg.Wikidata.Endpoint,
		UserAgent: cfg.Wikidata.UserAgent,
		ChunkSize: cfg.Wikidata.BatchSize,
	})

	enricher := engine.NewEnricher(store, client)
	return engine.NewMatcher(enricher, index), cleanup, nil
}

// gatherISINs merges the --isin and --isins flags into one target list.
func gatherISINs(isin string, isins []string) []string {
	if isin != "" {
		return []string{isin}
	}
	return isins
}
