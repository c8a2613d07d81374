// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/askit"
	"github.com/poiesic/askit/ai"
	"github.com/poiesic/askit/index"
	"github.com/poiesic/askit/ingestion"
	"github.com/poiesic/askit/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "askit",
		Usage: "Answer questions from a JSON knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "load",
				Usage:  "Load JSON documents into the knowledge base and rebuild the index",
				Action: loadCommand,
				Flags: append(databaseFlags(),
					&cli.StringFlag{
						Name:  "data",
						Usage: "Directory of *.json documents",
						Value: "data",
					},
					&cli.BoolFlag{
						Name:  "content-ids",
						Usage: "Derive ids of documents without an id from their content",
					},
					&cli.BoolFlag{
						Name:  "skip-index",
						Usage: "Do not rebuild the index after loading",
					},
				),
			},
			{
				Name:   "index",
				Usage:  "Embed all records and rebuild the vector index",
				Action: indexCommand,
				Flags: append(databaseFlags(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to embed in each batch",
						Value: index.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed batches",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: index.DefaultBuildConfig().PoolSize,
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Answer a question, or start an interactive session when none is given",
				ArgsUsage: "[question]",
				Action:    askCommand,
				Flags: append(databaseFlags(),
					&cli.IntFlag{
						Name:  "context-ttl",
						Usage: "Forget the conversation entity after N questions that found nothing (0 keeps it)",
					},
				),
			},
			{
				Name:      "retrieve",
				Usage:     "Show the ranked candidates retrieved for a question",
				ArgsUsage: "<question>",
				Action:    retrieveCommand,
				Flags: append(databaseFlags(),
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of candidates to retrieve",
						Value: search.DefaultTopK,
					},
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Print each retrieval stage",
					},
				),
			},
			{
				Name:   "status",
				Usage:  "Show record count and index state",
				Action: statusCommand,
				Flags:  databaseFlags(),
			},
		},
	}
}

// databaseFlags are shared by every command that opens the knowledge base.
func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the knowledge base (BadgerDB directory or SQLite file)",
			Value:   "knowledge_db",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Record store backend (badger, sqlite)",
			Value: string(askit.BackendBadger),
		},
		&cli.StringFlag{
			Name:  "index-dir",
			Usage: "Directory of the saved vector index (defaults to <db>.index)",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "all-minilm",
		},
	}
}

func openDatabase(c *cli.Context, opts ...askit.DatabaseOption) (*askit.Database, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Create AI config
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	options := []askit.DatabaseOption{
		askit.WithAIConfig(aiConfig),
		askit.WithBackend(askit.Backend(strings.ToLower(c.String("backend")))),
	}
	if dir := c.String("index-dir"); dir != "" {
		options = append(options, askit.WithIndexDir(dir))
	}

	db, err := askit.NewDatabase(dbPath, append(options, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}

func loadCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var loaderOpts []ingestion.Option
	if c.Bool("content-ids") {
		loaderOpts = append(loaderOpts, ingestion.WithContentIDs())
	}
	loader, err := db.NewLoader(loaderOpts...)
	if err != nil {
		return err
	}

	added, err := loader.LoadDir(ctx, c.String("data"))
	if err != nil {
		return fmt.Errorf("loading failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Successfully loaded %d records into database\n", added)

	if added == 0 || c.Bool("skip-index") {
		return nil
	}
	if _, err := db.BuildIndex(ctx, c.App.ErrWriter); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	buildConfig := &index.BuildConfig{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		PoolSize:       c.Int("workers"),
	}

	// Validate config
	if buildConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if buildConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if buildConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(c, askit.WithBuildConfig(buildConfig))
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := db.BuildIndex(ctx, c.App.ErrWriter); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Index saved to %s\n", db.IndexDir())
	return nil
}

func askCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.OpenIndex(ctx, c.App.ErrWriter); err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	pipeline, err := db.NewPipeline(ctx)
	if err != nil {
		return err
	}
	session := search.NewSession(search.WithContextTTL(c.Int("context-ttl")))

	if c.Args().Present() {
		question := strings.Join(c.Args().Slice(), " ")
		answer, err := pipeline.Answer(ctx, session, question)
		if err != nil {
			return err
		}
		writeAnswer(c.App.Writer, answer)
		return nil
	}
	return runREPL(ctx, c.App.Reader, c.App.Writer, pipeline, session)
}

func retrieveCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	if !c.Args().Present() {
		return fmt.Errorf("a question is required")
	}
	question := strings.Join(c.Args().Slice(), " ")

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.OpenIndex(ctx, c.App.ErrWriter); err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	searcher, err := db.NewSearcher(ctx)
	if err != nil {
		return err
	}

	var monitor search.SearchMonitor
	if c.Bool("trace") {
		monitor = newTraceMonitor(c.App.ErrWriter)
	}
	results, err := searcher.RetrieveWithMonitor(ctx, search.NewSession(), question, c.Int("top-k"), monitor)
	if err != nil {
		return err
	}
	writeCandidates(c.App.Writer, results)
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	// Status reports on the saved index without building one.
	if err := db.Index().Load(db.IndexDir()); err != nil {
		slog.Debug("index not loaded", "dir", db.IndexDir(), "err", err)
	}
	status, err := db.Status(ctx)
	if err != nil {
		return err
	}
	writeStatus(c.App.Writer, status)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
