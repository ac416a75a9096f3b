// Package server exposes starter statuses over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/common/expfmt"

	"github.com/robertmeta/ferment-cli/feed"
	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/store"
	"github.com/robertmeta/ferment-cli/stress"
)

// Store abstracts the record and event provider.
type Store interface {
	Statuses(m *stress.Model, opts store.ListOptions, now time.Time) ([]model.StarterStatus, error)
	Status(m *stress.Model, id int64, now time.Time) (model.StarterStatus, error)
	GetHistory(id int64) ([]*model.Event, error)
	RecordFeed(id int64, at time.Time) (*model.Event, error)
	RecordMove(id int64, location *model.Location, at time.Time, note string) (*model.Event, error)
}

// Config wraps the knobs that impact runtime behavior.
type Config struct {
	Addr   string
	Digest feed.Meta

	// Now is the clock read once per request. Defaults to time.Now.
	Now func() time.Time
}

// Server exposes the Fiber application.
type Server struct {
	app   *fiber.App
	store Store
	cfg   Config
	model atomic.Pointer[stress.Model]
}

// NewServer wires handlers and middleware.
func NewServer(cfg Config, st Store, m *stress.Model) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestLogger)
	app.Use(cors.New())

	srv := &Server{app: app, store: st, cfg: cfg}
	srv.SetModel(m)
	srv.registerRoutes()
	return srv
}

// SetModel swaps the location speed table used for new requests.
func (s *Server) SetModel(m *stress.Model) {
	if m == nil {
		m = stress.DefaultModel
	}
	s.model.Store(m)
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts listening for HTTP traffic until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	slog.Info("server: listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/digest.xml", s.handleDigest)
	s.app.Get("/metrics", s.handleMetrics)

	api := s.app.Group("/api/v1")
	api.Get("/starters", s.handleListStarters)
	api.Get("/starters/:id", s.handleGetStarter)
	api.Get("/starters/:id/history", s.handleHistory)
	api.Post("/starters/:id/feed", s.handleFeed)
	api.Post("/starters/:id/move", s.handleMove)
}

func (s *Server) handleListStarters(c *fiber.Ctx) error {
	opts, err := store.BuildListOptions(c.Query("location"), c.Query("label"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	items, err := s.store.Statuses(s.model.Load(), opts, s.cfg.Now())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("list starters: %v", err))
	}

	return c.JSON(fiber.Map{
		"data": items,
		"meta": fiber.Map{"count": len(items)},
	})
}

func (s *Server) handleGetStarter(c *fiber.Ctx) error {
	id, err := starterID(c)
	if err != nil {
		return err
	}

	item, err := s.store.Status(s.model.Load(), id, s.cfg.Now())
	if err != nil {
		return storeError("get starter", err)
	}
	return c.JSON(fiber.Map{"data": item})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	id, err := starterID(c)
	if err != nil {
		return err
	}

	events, err := s.store.GetHistory(id)
	if err != nil {
		return storeError("get history", err)
	}
	return c.JSON(fiber.Map{
		"data": events,
		"meta": fiber.Map{"count": len(events)},
	})
}

type feedRequest struct {
	At string `json:"at"`
}

func (s *Server) handleFeed(c *fiber.Ctx) error {
	id, err := starterID(c)
	if err != nil {
		return err
	}

	var payload feedRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
	}

	now := s.cfg.Now()
	at, err := store.ParseAt(payload.At, now)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	evt, err := s.store.RecordFeed(id, at)
	if err != nil {
		return storeError("record feed", err)
	}

	item, err := s.store.Status(s.model.Load(), id, now)
	if err != nil {
		return storeError("get starter", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": item, "event": evt})
}

type moveRequest struct {
	Location *string `json:"location"`
	Note     string  `json:"note"`
	At       string  `json:"at"`
}

func (s *Server) handleMove(c *fiber.Ctx) error {
	id, err := starterID(c)
	if err != nil {
		return err
	}

	var payload moveRequest
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	var location *model.Location
	if payload.Location != nil {
		loc := model.ParseLocation(*payload.Location)
		if loc == "" {
			return fiber.NewError(fiber.StatusBadRequest, "location must not be empty; use null for a marker")
		}
		location = &loc
	}

	now := s.cfg.Now()
	at, err := store.ParseAt(payload.At, now)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	evt, err := s.store.RecordMove(id, location, at, payload.Note)
	if err != nil {
		return storeError("record move", err)
	}

	item, err := s.store.Status(s.model.Load(), id, now)
	if err != nil {
		return storeError("get starter", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": item, "event": evt})
}

func (s *Server) handleDigest(c *fiber.Ctx) error {
	now := s.cfg.Now()
	items, err := s.store.Statuses(s.model.Load(), store.ListOptions{}, now)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("list starters: %v", err))
	}

	var buf bytes.Buffer
	if err := feed.GenerateDigest(&buf, s.cfg.Digest, items, now); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "application/rss+xml; charset=utf-8")
	return c.Send(buf.Bytes())
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	items, err := s.store.Statuses(s.model.Load(), store.ListOptions{}, s.cfg.Now())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("list starters: %v", err))
	}

	var buf bytes.Buffer
	if err := WriteMetrics(&buf, items); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	return c.Send(buf.Bytes())
}

func starterID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid starter id")
	}
	return id, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("%s: %v", op, err))
}

// errorHandler renders every error as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("server: request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	slog.Debug("server: request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"latency", time.Since(start))
	return err
}
