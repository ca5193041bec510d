package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/prosora/internal/feedback"
	"github.com/mohammad-safakhou/prosora/internal/queue/streams"
	"github.com/mohammad-safakhou/prosora/internal/registry"
	"github.com/mohammad-safakhou/prosora/models"
)

// QueryExecutor runs one query through the pipeline.
type QueryExecutor interface {
	Execute(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error)
}

// QueryHandler exposes the query interface.
type QueryHandler struct {
	Pipeline QueryExecutor
	Logger   *log.Logger
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("", h.query)
}

func (h *QueryHandler) query(c echo.Context) error {
	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.Pipeline.Execute(c.Request().Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, "query text is empty or unparseable")
	case errors.Is(err, models.ErrSourceUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no source reachable and no cached snapshot available")
	case c.Request().Context().Err() != nil:
		return echo.NewHTTPError(http.StatusRequestTimeout, "query cancelled")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// EventPublisher appends an event to the performance stream.
type EventPublisher interface {
	PublishRaw(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// Processor handles a performance record inline.
type Processor interface {
	Process(ctx context.Context, rec models.PerformanceRecord) error
}

// PerformanceHandler ingests engagement numbers for delivered content.
// Events go through the stream so the learn worker picks them up; when
// redis is down the record is processed inline instead of being dropped.
type PerformanceHandler struct {
	Publisher EventPublisher
	Engine    Processor
	Stream    string
	Logger    *log.Logger
}

func (h *PerformanceHandler) Register(g *echo.Group) {
	g.POST("", h.ingest)
}

func (h *PerformanceHandler) ingest(c echo.Context) error {
	var rec models.PerformanceRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if rec.ContentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content_id required")
	}
	if rec.Views < 0 || rec.Likes < 0 || rec.Comments < 0 || rec.Shares < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "engagement counts must be non-negative")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	ctx := c.Request().Context()
	if h.Publisher != nil {
		if _, err := h.Publisher.PublishRaw(ctx, h.Stream, streams.EventPerformanceRecorded, rec, streams.WithMaxLenApprox(100_000)); err == nil {
			return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
		} else if h.Logger != nil {
			h.Logger.Printf("stream publish failed, processing inline: %v", err)
		}
	}
	if h.Engine == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "performance ingestion unavailable")
	}
	if err := h.Engine.Process(ctx, rec); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "processed"})
}

// SourcesHandler exposes the registry snapshot with learned credibility.
type SourcesHandler struct {
	Registry *registry.Registry
}

func (h *SourcesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

func (h *SourcesHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Registry.Snapshot())
}

func (h *SourcesHandler) get(c echo.Context) error {
	src, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, src)
}

// PatternsHandler exposes the learned pattern state.
type PatternsHandler struct {
	Engine *feedback.Engine
}

func (h *PatternsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
}

func (h *PatternsHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Engine.Patterns())
}
