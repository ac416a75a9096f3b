package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/robertmeta/ferment-cli/backup"
	"github.com/robertmeta/ferment-cli/config"
	"github.com/robertmeta/ferment-cli/feed"
	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/server"
	"github.com/robertmeta/ferment-cli/store"
	"github.com/robertmeta/ferment-cli/stress"
	"github.com/urfave/cli/v2"
)

// environment is resolved once per invocation in setup.
type environment struct {
	cfg     *config.Config
	cfgPath string
	dbPath  string
	model   *stress.Model

	// now is read once so every status in one invocation shares it.
	now    time.Time
	nowSet bool
}

var env environment

func setup(c *cli.Context) error {
	env = environment{}

	env.cfgPath = c.String("config")
	var err error
	if env.cfgPath != "" {
		env.cfg, err = config.Load(env.cfgPath)
	} else {
		env.cfgPath = config.DefaultPath()
		env.cfg, err = config.LoadOrDefault(env.cfgPath)
	}
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	level := env.cfg.SlogLevel()
	if c.IsSet("log-level") {
		l, ok := config.ParseLevel(c.String("log-level"))
		if !ok {
			return cli.Exit(fmt.Sprintf("Invalid log level: %s", c.String("log-level")), ExitUsageError)
		}
		level = l
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})))

	env.dbPath = env.cfg.DB
	if c.IsSet("db") {
		env.dbPath = c.String("db")
	}

	env.now = time.Now()
	if s := c.String("now"); s != "" {
		env.now, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Invalid --now: %v", err), ExitUsageError)
		}
		env.nowSet = true
	}

	env.model = env.cfg.SpeedModel()
	slog.Debug("configured", "config", env.cfgPath, "db", env.dbPath, "now", env.now)
	return nil
}

func getStore() (*store.Store, error) {
	if env.dbPath != ":memory:" {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(env.dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	s, err := store.New(env.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

func outputJSON(c *cli.Context, v interface{}) error {
	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid starter ID: %s", s)
	}
	return id, nil
}

func dataError(msg string, err error) error {
	return cli.Exit(fmt.Sprintf("%s: %v", msg, err), ExitDataError)
}

// openOutput returns stdout or the named file.
func openOutput(c *cli.Context, path string) (io.Writer, func() error, error) {
	if path == "" {
		return c.App.Writer, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}

// closeOutput closes what openOutput opened. A failed close means the file
// may be truncated.
func closeOutput(closeFn func() error, path string) error {
	if err := closeFn(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to write %s: %v", path, err), ExitDataError)
	}
	return nil
}

func addStarter(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli add <name> --every <interval>", ExitUsageError)
	}

	interval, err := store.ParseInterval(c.String("every"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid --every: %v", err), ExitUsageError)
	}

	fedAt, err := store.ParseAt(c.String("fed-at"), env.now)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid --fed-at: %v", err), ExitUsageError)
	}

	newStarter := &model.Starter{
		Name:          c.Args().Get(0),
		Kind:          c.String("kind"),
		IntervalHours: interval,
		LastFedAt:     fedAt.UTC().Format(time.RFC3339Nano),
		Location:      model.ParseLocation(c.String("location")),
	}
	if err := newStarter.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.SaveStarter(newStarter); err != nil {
		return dataError("Failed to save starter", err)
	}
	if _, err := s.RecordFeed(newStarter.ID, fedAt); err != nil {
		return dataError("Failed to record feed", err)
	}

	status, err := s.Status(env.model, newStarter.ID, env.now)
	if err != nil {
		return dataError("Failed to get starter", err)
	}

	return outputJSON(c, map[string]interface{}{
		"success": true,
		"starter": status,
	})
}

func listStarters(c *cli.Context) error {
	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	starters, err := s.GetAllStarters(store.ListOptions{})
	if err != nil {
		return dataError("Failed to get starters", err)
	}
	if starters == nil {
		starters = []*model.Starter{}
	}

	return outputJSON(c, starters)
}

func showStatus(c *cli.Context) error {
	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if c.NArg() > 0 {
		id, err := parseID(c.Args().Get(0))
		if err != nil {
			return cli.Exit(err.Error(), ExitUsageError)
		}
		status, err := s.Status(env.model, id, env.now)
		if err != nil {
			return dataError("Failed to get starter", err)
		}
		return outputJSON(c, status)
	}

	opts, err := store.BuildListOptions(c.String("location"), c.String("label"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid filter: %v", err), ExitUsageError)
	}

	statuses, err := s.Statuses(env.model, opts, env.now)
	if err != nil {
		return dataError("Failed to compute statuses", err)
	}

	return outputJSON(c, map[string]interface{}{
		"now":      env.now.UTC().Format(time.RFC3339),
		"count":    len(statuses),
		"starters": statuses,
	})
}

func feedStarters(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli feed <starter-id>...", ExitUsageError)
	}

	at, err := store.ParseAt(c.String("at"), env.now)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid --at: %v", err), ExitUsageError)
	}

	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	fed := []model.StarterStatus{}
	var errs []string
	for i := 0; i < c.NArg(); i++ {
		id, err := parseID(c.Args().Get(i))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}

		if _, err := s.RecordFeed(id, at); err != nil {
			errs = append(errs, fmt.Sprintf("%d: %v", id, err))
			continue
		}

		status, err := s.Status(env.model, id, env.now)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%d: %v", id, err))
			continue
		}
		fed = append(fed, status)
	}

	if err := outputJSON(c, map[string]interface{}{
		"fed":      len(fed),
		"starters": fed,
		"errors":   errs,
	}); err != nil {
		return err
	}
	if len(fed) == 0 {
		return cli.Exit("", ExitDataError)
	}
	return nil
}

func moveStarter(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: ferment-cli move <starter-id> <location>", ExitUsageError)
	}

	location := model.ParseLocation(c.Args().Get(1))
	if location == "" {
		return cli.Exit("Location must not be empty (use mark for a marker)", ExitUsageError)
	}
	return recordMove(c, &location)
}

func markStarter(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli mark <starter-id>", ExitUsageError)
	}
	return recordMove(c, nil)
}

func recordMove(c *cli.Context, location *model.Location) error {
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	at, err := store.ParseAt(c.String("at"), env.now)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid --at: %v", err), ExitUsageError)
	}

	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	event, err := s.RecordMove(id, location, at, c.String("note"))
	if err != nil {
		return dataError("Failed to record move", err)
	}

	status, err := s.Status(env.model, id, env.now)
	if err != nil {
		return dataError("Failed to get starter", err)
	}

	return outputJSON(c, map[string]interface{}{
		"success": true,
		"event":   event,
		"starter": status,
	})
}

func showHistory(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli history <starter-id>", ExitUsageError)
	}

	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	events, err := s.GetHistory(id)
	if err != nil {
		return dataError("Failed to get history", err)
	}
	if events == nil {
		events = []*model.Event{}
	}

	return outputJSON(c, map[string]interface{}{
		"starter_id": id,
		"count":      len(events),
		"events":     events,
	})
}

func removeStarter(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli remove <starter-id>", ExitUsageError)
	}

	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.DeleteStarter(id); err != nil {
		return dataError("Failed to delete starter", err)
	}

	return outputJSON(c, map[string]interface{}{
		"success":    true,
		"starter_id": id,
	})
}

func writeDigest(c *cli.Context) error {
	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	statuses, err := s.Statuses(env.model, store.ListOptions{}, env.now)
	if err != nil {
		return dataError("Failed to compute statuses", err)
	}

	outputPath := c.String("output")
	writer, closeFn, err := openOutput(c, outputPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
	}

	meta := feed.Meta{Title: env.cfg.Digest.Title, Link: env.cfg.Digest.Link}
	if err := feed.GenerateDigest(writer, meta, statuses, env.now); err != nil {
		_ = closeFn()
		return cli.Exit(fmt.Sprintf("Failed to generate digest: %v", err), ExitDataError)
	}
	if err := closeOutput(closeFn, outputPath); err != nil {
		return err
	}

	// If outputting to file, also return JSON status
	if outputPath != "" {
		return outputJSON(c, map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(statuses),
		})
	}
	return nil
}

func followDigest(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli follow <url|file>", ExitUsageError)
	}

	var label stress.Label
	if l := c.String("label"); l != "" {
		parsed, ok := stress.ParseLabel(l)
		if !ok {
			return cli.Exit(fmt.Sprintf("Invalid label: %s", l), ExitUsageError)
		}
		label = parsed
	}

	source := c.Args().Get(0)
	reader := feed.NewReader()

	var digest *feed.Digest
	if file, err := os.Open(source); err == nil {
		defer file.Close()
		digest, err = reader.Read(file)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
	} else {
		digest, err = reader.Fetch(c.Context, source)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
	}

	items := make([]*feed.DigestItem, 0, len(digest.Items))
	for _, item := range digest.Items {
		if label != "" && item.Label != label {
			continue
		}
		items = append(items, item)
	}

	return outputJSON(c, map[string]interface{}{
		"title": digest.Title,
		"count": len(items),
		"items": items,
	})
}

func exportBackup(c *cli.Context) error {
	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	starters, err := s.GetAllStarters(store.ListOptions{})
	if err != nil {
		return dataError("Failed to get starters", err)
	}

	history := make(map[int64][]*model.Event, len(starters))
	for _, st := range starters {
		events, err := s.GetHistory(st.ID)
		if err != nil {
			return dataError("Failed to get history", err)
		}
		history[st.ID] = events
	}

	outputPath := c.String("output")
	writer, closeFn, err := openOutput(c, outputPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
	}

	if err := backup.Generate(writer, starters, history, env.now); err != nil {
		_ = closeFn()
		return cli.Exit(fmt.Sprintf("Failed to write backup: %v", err), ExitDataError)
	}
	if err := closeOutput(closeFn, outputPath); err != nil {
		return err
	}

	if outputPath != "" {
		return outputJSON(c, map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(starters),
		})
	}
	return nil
}

func importBackup(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ferment-cli import <backup-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open backup file: %v", err), ExitDataError)
	}
	defer file.Close()

	b, err := backup.Parse(file)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	res := backup.Restore(s, b)
	return outputJSON(c, map[string]interface{}{
		"success":  true,
		"total":    len(b.Starters),
		"imported": res.Imported,
		"skipped":  res.Skipped,
		"events":   res.Events,
		"errors":   res.Errors,
	})
}

func serve(c *cli.Context) error {
	s, err := getStore()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	addr := env.cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	cfg := server.Config{
		Addr:   addr,
		Digest: feed.Meta{Title: env.cfg.Digest.Title, Link: env.cfg.Digest.Link},
	}
	if env.nowSet {
		fixed := env.now
		cfg.Now = func() time.Time { return fixed }
	}
	srv := server.NewServer(cfg, s, env.model)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(env.cfgPath); err == nil {
		go func() {
			err := config.Watch(ctx, env.cfgPath, func(cfg *config.Config) {
				srv.SetModel(cfg.SpeedModel())
			})
			if err != nil {
				slog.Error("config: watch stopped", "path", env.cfgPath, "err", err)
			}
		}()
	}

	slog.Info("ferment-cli serve starting", "addr", addr, "db", env.dbPath)
	if err := srv.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("Server stopped: %v", err), ExitGeneralError)
	}
	slog.Info("ferment-cli serve shutting down")
	return nil
}
