package main

// this file contains implementation of HTTP handlers - read-only status API

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arift/DJ-Pasha/meta"
	"github.com/arift/DJ-Pasha/player"
)

func NewHTTPRouter(engine *meta.Engine, registry player.Registry) *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
	}))

	h := &statusHandlers{engine: engine, registry: registry}
	api := r.Group("/api")
	api.GET("/health", h.health)
	api.GET("/now_playing", h.nowPlaying)
	api.GET("/queue", h.queue)
	api.GET("/stats", h.stats)
	return r
}

type statusHandlers struct {
	engine   *meta.Engine
	registry player.Registry
}

func (h *statusHandlers) health(c echo.Context) error {
	return c.String(http.StatusOK, "I am up and running!")
}

func (h *statusHandlers) nowPlaying(c echo.Context) error {
	p, ok := h.registry.Any()
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{
			"state":      player.StateIdle.String(),
			"song":       nil,
			"queue_size": 0,
		})
	}

	resp := echo.Map{
		"state":      p.State().String(),
		"song":       nil,
		"queue_size": p.Queue().Size(),
	}
	if item, ok := p.NowPlaying(); ok {
		song := echo.Map{
			"video_id":  item.ID,
			"url":       item.URL,
			"queued_by": item.By,
		}
		if info, err := h.engine.GetInfo(c.Request().Context(), item.ID); err == nil {
			song["title"] = info.Title
			song["channel"] = info.OwnerChannelName
			song["length_seconds"] = info.LengthSeconds
		}
		resp["song"] = song
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *statusHandlers) queue(c echo.Context) error {
	p, ok := h.registry.Any()
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"songs": []echo.Map{}})
	}

	items := p.Queue().Items()
	songs := make([]echo.Map, 0, len(items))
	for _, item := range items {
		song := echo.Map{
			"video_id":  item.ID,
			"url":       item.URL,
			"queued_by": item.By,
		}
		if info, err := h.engine.GetInfo(c.Request().Context(), item.ID); err == nil {
			song["title"] = info.Title
			song["length_seconds"] = info.LengthSeconds
		}
		songs = append(songs, song)
	}
	return c.JSON(http.StatusOK, echo.Map{"songs": songs})
}

func (h *statusHandlers) stats(c echo.Context) error {
	start, err := parseDateParam(c.QueryParam("start"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad start date"})
	}
	end, err := parseDateParam(c.QueryParam("end"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad end date"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	stats, err := h.engine.TopPlayers(c.Request().Context(), start, end, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"stats": stats})
}

func parseDateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, echo.ErrBadRequest
}
