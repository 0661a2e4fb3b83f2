package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"appgen/internal/client"
	"appgen/internal/domain/entity"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Generation server base URL")
	input := flag.String("input", "", "Application idea (required)")
	reuse := flag.Bool("reuse", true, "Reuse a similar previous design when available")
	retries := flag.Int("retries", -1, "Generation retries (-1 uses the server default)")
	outDir := flag.String("out", "", "Directory to write the generated files to (optional)")
	verbose := flag.Bool("v", false, "Log skipped frames and transport details")
	flag.Parse()

	if strings.TrimSpace(*input) == "" && flag.NArg() > 0 {
		*input = strings.Join(flag.Args(), " ")
	}
	if strings.TrimSpace(*input) == "" {
		exitErr("input is required")
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	req := entity.GenerationRequest{UserInput: *input, ReuseSimilar: *reuse}
	if *retries >= 0 {
		req.MaxRetries = retries
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := client.NewController(client.NewHTTPTransport(*server, nil), logger)
	events, err := ctrl.Start(context.Background(), req)
	if err != nil {
		exitErr(fmt.Sprintf("start: %v", err))
	}

	go func() {
		<-ctx.Done()
		if ctrl.Cancel() {
			fmt.Fprintln(os.Stderr, "\ncancelled")
		}
	}()

	for ev := range events {
		printEvent(os.Stdout, ev)
	}
	<-ctrl.Done()

	snap := ctrl.Snapshot()
	switch snap.State {
	case client.StateSucceeded:
		if *outDir != "" && snap.Result != nil {
			if err := writeFiles(*outDir, snap.Result.Files); err != nil {
				exitErr(fmt.Sprintf("write files: %v", err))
			}
			fmt.Printf("wrote %d files to %s\n", len(snap.Result.Files), *outDir)
		}
	case client.StateCancelled:
		os.Exit(130)
	default:
		var rl *entity.RateLimitedError
		if errors.As(snap.Err, &rl) {
			exitErr(fmt.Sprintf("rate limited, retry in %ds", int(rl.RetryAfter.Seconds())))
		}
		exitErr(fmt.Sprintf("generation failed: %v", snap.Err))
	}
}

func printEvent(w io.Writer, ev entity.ProgressEvent) {
	switch ev.Type {
	case entity.EventComplete:
		fmt.Fprintf(w, "[%3d%%] done: %s\n", ev.Progress, ev.Message)
	case entity.EventError:
		fmt.Fprintf(w, "[%3d%%] %s failed: %s\n", ev.Progress, ev.Stage, ev.Message)
	default:
		fmt.Fprintf(w, "[%3d%%] %-14s %s\n", ev.Progress, ev.Stage, ev.Message)
	}
}

func writeFiles(dir string, files map[string]string) error {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	root, err := os.OpenRoot(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		root, err = os.OpenRoot(dir)
	}
	if err != nil {
		return err
	}
	defer root.Close()

	for _, p := range paths {
		if d := filepath.Dir(p); d != "." {
			if err := mkdirAllIn(root, d); err != nil {
				return fmt.Errorf("create %s: %w", d, err)
			}
		}
		f, err := root.Create(p)
		if err != nil {
			return fmt.Errorf("create %s: %w", p, err)
		}
		_, werr := f.WriteString(files[p])
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

// mkdirAllIn creates every element of rel inside root.
func mkdirAllIn(root *os.Root, rel string) error {
	cur := ""
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		cur = filepath.Join(cur, part)
		if err := root.Mkdir(cur, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return err
		}
	}
	return nil
}

func exitErr(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
