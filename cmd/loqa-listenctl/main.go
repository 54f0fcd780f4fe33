package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/eventstore"
	"github.com/loqalabs/loqa-listen/internal/transliterate"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'transliterate', 'sessions', 'events' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "transliterate":
		err = runTransliterate(os.Args[2:], os.Stdout)
	case "sessions":
		err = runSessions(os.Args[2:], os.Stdout)
	case "events":
		err = runEvents(os.Args[2:], os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runTransliterate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("transliterate", flag.ExitOnError)
	fs.Parse(args)
	text := strings.Join(fs.Args(), " ")
	if text == "" {
		return fmt.Errorf("usage: transliterate <text>")
	}
	seg, err := transliterate.NewKagomeSegmenter()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, transliterate.New(seg, quietLogger()).Transliterate(text))
	return nil
}

func openTimeline(configPath string) (*eventstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.EventStore.RetentionMode == eventstore.RetentionEphemeral {
		return nil, fmt.Errorf("timeline is ephemeral; nothing is recorded")
	}
	// session retention would clear the timeline on open
	cfg.EventStore.RetentionMode = eventstore.RetentionPersistent
	cfg.EventStore.VacuumOnStart = false
	return eventstore.Open(context.Background(), cfg.EventStore, quietLogger())
}

func runSessions(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", "loqa-listen.yaml", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum sessions to list")
	fs.Parse(args)

	store, err := openTimeline(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()
	sessions, err := store.RecentSessions(context.Background(), *limit)
	if err != nil {
		return err
	}
	return writeJSON(out, sessions)
}

func runEvents(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	configPath := fs.String("config", "loqa-listen.yaml", "Path to configuration file")
	sessionID := fs.String("session", "", "Session id")
	limit := fs.Int("limit", 100, "Maximum events to list")
	fs.Parse(args)
	if *sessionID == "" {
		return fmt.Errorf("events requires -session")
	}

	store, err := openTimeline(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()
	events, err := store.ListSessionEvents(context.Background(), *sessionID, *limit)
	if err != nil {
		return err
	}
	return writeJSON(out, events)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
