// Package api exposes the admin HTTP surface of the bridge: health,
// runtime stats, live sessions, persona control, and per-sensor affect
// state. Mutating routes sit behind the optional bearer-token guard.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/affect"
	"github.com/yudurobotics/zing-bridge/internal/auth"
	"github.com/yudurobotics/zing-bridge/internal/session"
	"github.com/yudurobotics/zing-bridge/internal/stats"
	"github.com/yudurobotics/zing-bridge/internal/websocket"
)

// SessionDirectory is the view of the session registry the API needs.
type SessionDirectory interface {
	Snapshot() []session.Info
	Len() int
}

// AffectSource is the view of the affect engine the API needs.
type AffectSource interface {
	Persona() *affect.PersonaState
	State(sensorID uint32) (entities.AffectState, bool)
	States() []entities.AffectState
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, sessions SessionDirectory, engine AffectSource, st *stats.Stats, hub *websocket.Hub, authn *auth.Authenticator, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Service: "zing-bridge",
		})
	})

	// API v1 routes, guarded when a JWT secret is configured.
	v1 := e.Group("/api/v1", authn.Middleware())

	v1.GET("/stats", func(c echo.Context) error {
		return c.JSON(http.StatusOK, st.Snapshot())
	})

	v1.GET("/sessions", func(c echo.Context) error {
		return c.JSON(http.StatusOK, sessions.Snapshot())
	})

	v1.GET("/persona", func(c echo.Context) error {
		return c.JSON(http.StatusOK, PersonaResponse{
			Persona: string(engine.Persona().Get()),
		})
	})

	v1.PUT("/persona", func(c echo.Context) error {
		return putPersona(c, engine, logger)
	})

	v1.GET("/persona/list", func(c echo.Context) error {
		names := make([]string, len(entities.Personas))
		for i, p := range entities.Personas {
			names[i] = string(p)
		}
		return c.JSON(http.StatusOK, PersonaListResponse{Personas: names})
	})

	v1.GET("/affect", func(c echo.Context) error {
		return c.JSON(http.StatusOK, engine.States())
	})

	v1.GET("/affect/:sensor_id", func(c echo.Context) error {
		return getAffect(c, engine)
	})

	// Live telemetry feed for dashboards.
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	}, authn.Middleware())
}

func putPersona(c echo.Context, engine AffectSource, logger *zap.Logger) error {
	var req PersonaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	persona := entities.Persona(req.Persona)
	if req.Persona == "" && req.Index != nil {
		p, err := entities.PersonaFromIndex(*req.Index)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "unknown_persona",
				Message: "Persona index out of range",
			})
		}
		persona = p
	}
	if err := engine.Persona().Set(persona); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unknown_persona",
			Message: "Persona must be one of the listed traits",
		})
	}
	logger.Info("persona changed", zap.String("persona", string(persona)))
	return c.JSON(http.StatusOK, PersonaResponse{Persona: string(persona)})
}

func getAffect(c echo.Context, engine AffectSource) error {
	id, err := strconv.ParseUint(c.Param("sensor_id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_sensor_id",
			Message: "Sensor id must be an unsigned integer",
		})
	}
	state, ok := engine.State(uint32(id))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "unknown_sensor",
			Message: "No affect state recorded for this sensor",
		})
	}
	return c.JSON(http.StatusOK, state)
}
