// Command orato-score assesses one or more WAV recordings of a passage and
// prints the reports as JSON.
//
// Usage:
//
//	orato-score -config config.yaml -text "The quick brown fox." clip1.wav [clip2.wav ...]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/orato/internal/app"
	"github.com/MrWong99/orato/internal/assess"
	"github.com/MrWong99/orato/internal/config"
	"github.com/MrWong99/orato/internal/history"
	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/pkg/audio"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// result is one line of output.
type result struct {
	File   string              `json:"file"`
	Report *report.FinalReport `json:"report,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("orato-score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	passage := fs.String("text", "", "reference passage the recordings read aloud")
	textFile := fs.String("text-file", "", "read the reference passage from a file instead of -text")
	learner := fs.String("learner", "", "record the attempts in the history store under this learner ID")
	indent := fs.Bool("pretty", false, "indent the JSON output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *textFile != "" {
		b, err := os.ReadFile(*textFile)
		if err != nil {
			fmt.Fprintf(stderr, "orato-score: %v\n", err)
			return 2
		}
		*passage = string(b)
	}
	if strings.TrimSpace(*passage) == "" || fs.NArg() == 0 {
		fmt.Fprintln(stderr, "orato-score: need -text (or -text-file) and at least one WAV file")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "orato-score: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.Level()})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Shutdown(sctx)
	}()

	files := fs.Args()
	clips, err := loadClips(ctx, files, cfg.Batch.MaxConcurrency)
	if err != nil {
		slog.Error("failed to load audio", "err", err)
		return 1
	}

	reqs := make([]assess.Request, len(clips))
	for i, c := range clips {
		reqs[i] = assess.Request{Text: *passage, Clip: c}
	}
	outcomes, err := application.Engine().AssessBatch(ctx, reqs)
	if err != nil {
		slog.Error("batch interrupted", "err", err)
		return 1
	}

	exit := 0
	results := make([]result, len(outcomes))
	for i, o := range outcomes {
		results[i].File = files[i]
		if o.Err != nil {
			results[i].Error = o.Err.Error()
			exit = 1
			continue
		}
		results[i].Report = &o.Report
		if *learner != "" {
			a := history.FromReport(*learner, *passage, o.Report, time.Now())
			if err := application.History().Save(ctx, a); err != nil {
				slog.Warn("failed to save attempt", "file", files[i], "err", err)
			}
		}
	}

	enc := json.NewEncoder(stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(results); err != nil {
		fmt.Fprintf(stderr, "orato-score: %v\n", err)
		return 1
	}
	return exit
}

// loadClips decodes the WAV files concurrently, keeping argument order.
func loadClips(ctx context.Context, paths []string, limit int) ([]*audio.Clip, error) {
	clips := make([]*audio.Clip, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := audio.Load(p)
			if err != nil {
				return err
			}
			clips[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}
