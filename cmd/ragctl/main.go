package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/kirillkom/agentic-rag/internal/bootstrap"
	"github.com/kirillkom/agentic-rag/internal/config"
	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/observability/logging"
)

const (
	programName = "ragctl"
	version     = "v1.0.0"
)

type askCmd struct {
	Question []string `arg:"positional,required" help:"question to answer"`
	JSON     bool     `arg:"--json" help:"print the full result as JSON"`
}

type uploadCmd struct {
	Files []string `arg:"positional,required" help:"documents to upload for indexing"`
}

type args struct {
	Ask    *askCmd    `arg:"subcommand:ask" help:"answer a question from the indexed collection"`
	Upload *uploadCmd `arg:"subcommand:upload" help:"store documents and queue them for indexing"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", programName, version)
}

func main() {
	var cli args
	p, err := arg.NewParser(arg.Config{Program: programName}, &cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid command definition: %v\n", err)
		os.Exit(2)
	}
	p.MustParse(os.Args[1:])
	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewStderrJSONLogger(programName, cfg.LogLevel))

	ctx := context.Background()
	switch cmd := p.Subcommand().(type) {
	case *askCmd:
		err = runAsk(ctx, cfg, cmd)
	case *uploadCmd:
		err = runUpload(ctx, cfg, cmd)
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func runAsk(ctx context.Context, cfg config.Config, cmd *askCmd) error {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: programName})
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.AnswerUC.Answer(ctx, strings.Join(cmd.Question, " "))
	if err != nil {
		return err
	}
	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printAnswer(result)
	return nil
}

func printAnswer(result *domain.AnswerResult) {
	fmt.Println(result.Answer)
	if result.Fallback {
		return
	}
	fmt.Printf("\nquery: %s (best score %.2f)\n", result.QueryUsed, result.BestScore)
	for _, source := range result.Sources {
		fmt.Printf("  - %s chunk %d (%.2f)\n", source.File, source.Chunk, source.Score)
	}
}

func runUpload(ctx context.Context, cfg config.Config, cmd *uploadCmd) error {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: programName, Ingestion: true})
	if err != nil {
		return err
	}
	defer app.Close()

	for _, path := range cmd.Files {
		doc, err := uploadFile(ctx, app, path)
		if err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		fmt.Printf("%s\t%s\t%s\n", doc.ID, doc.Status, doc.Filename)
	}
	return nil
}

func uploadFile(ctx context.Context, app *bootstrap.App, path string) (*domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	return app.IngestUC.Upload(ctx, name, mime.TypeByExtension(filepath.Ext(name)), f)
}
