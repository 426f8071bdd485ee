package server

import (
	"bytes"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/minjae-ko/turnvault/config"
	"github.com/minjae-ko/turnvault/internal/convert"
	"github.com/minjae-ko/turnvault/internal/export"
	"github.com/minjae-ko/turnvault/internal/extract"
	"github.com/minjae-ko/turnvault/internal/render"
	"github.com/minjae-ko/turnvault/internal/store"
)

// SessionsHandler orchestrates the session browser, turn persistence,
// extraction and export endpoints.
type SessionsHandler struct {
	Repo     *store.Repo
	Cache    *SessionCache // optional
	Shell    *render.Shell
	Pipeline *extract.Pipeline
	Export   *export.Builder
	Extract  config.ExtractConfig
	Logger   *log.Logger
}

func (h *SessionsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.POST("/:id/turns", h.saveTurn)
	g.POST("/:id/extract", h.extract)
	g.GET("/:id/export", h.export)
}

func (h *SessionsHandler) list(c echo.Context) error {
	ctx := c.Request().Context()
	if h.Cache != nil {
		if sessions, ok := h.Cache.Get(ctx); ok {
			return c.JSON(http.StatusOK, sessions)
		}
	}
	sessions, err := h.Repo.ListSessions(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Cache != nil {
		h.Cache.Set(ctx, sessions)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *SessionsHandler) create(c echo.Context) error {
	ctx := c.Request().Context()
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := uuid.New().String()
	if err := h.Repo.CreateSession(ctx, id, req.Subject, req.Title); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *SessionsHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	session, err := h.Repo.GetSession(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	turns, err := h.Repo.ListTurns(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"session": session, "turns": turns})
}

func (h *SessionsHandler) saveTurn(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	var req SaveTurnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Turn < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "turn must be >= 1")
	}
	if req.HTML == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "html required")
	}
	text, err := convert.TurnLog(req.HTML, req.Turn)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err = h.Repo.SaveTurn(ctx, req.Subject, req.Title, store.Turn{
		SessionID: id,
		Number:    req.Turn,
		HTML:      req.HTML,
		Text:      text,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx)
	}
	return c.JSON(http.StatusCreated, map[string]int{"turn": req.Turn})
}

func (h *SessionsHandler) extract(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Marker == "" {
		req.Marker = extract.MarkerTurn
	}
	if req.BatchSize == 0 {
		req.BatchSize = h.Extract.BatchSize
	}

	turns, err := h.Repo.ListTurns(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(turns) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "session has no turns")
	}
	fullText := ""
	for i, t := range turns {
		if i > 0 {
			fullText += "\n\n"
		}
		fullText += t.Text
	}

	res, err := h.Pipeline.Run(ctx, fullText, extract.Options{
		Marker:          req.Marker,
		BatchSize:       req.BatchSize,
		Pace:            h.Extract.InteractivePace,
		ContinueOnError: req.ContinueOnError,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	kind := extract.KindForMarker(req.Marker)
	err = h.Repo.SaveExtraction(ctx, store.Extraction{
		SessionID:  id,
		Kind:       kind,
		ChunkCount: res.ChunkCount,
		BatchSize:  res.BatchSize,
		Output:     res.Output,
	})
	if err != nil {
		h.Logger.Printf("extraction for %s computed but not persisted: %v", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, ExtractResponse{
		Kind:       kind,
		ChunkCount: res.ChunkCount,
		BatchSize:  res.BatchSize,
		Batches:    batchStatuses(res.Batches),
		Output:     res.Output,
	})
}

func (h *SessionsHandler) export(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	mode := c.QueryParam("mode")
	if mode == "" {
		mode = export.FormatRaw
	}

	var doc *export.Document
	var err error
	switch mode {
	case export.FormatRaw:
		doc, err = h.Export.Raw(ctx, id)
	case export.FormatExtracted:
		doc, err = h.Export.Extracted(ctx, id)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be raw or extracted")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	body, err := export.Marshal(doc)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, export.Filename(id, mode)))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
}

// view serves the rendered shell page for a session's latest turn.
func (h *SessionsHandler) view(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	session, err := h.Repo.GetSession(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	turns, err := h.Repo.ListTurns(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(turns) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "session has no turns")
	}
	latest := turns[len(turns)-1]

	var buf bytes.Buffer
	if err := h.Shell.Render(ctx, &buf, latest.HTML, session.Title, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTML(http.StatusOK, buf.String())
}
