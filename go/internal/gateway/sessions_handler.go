package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/clients/ollama_client"
	"github.com/mcdev12/showdown/go/internal/archive"
	"github.com/mcdev12/showdown/go/internal/session"
)

// ModelCatalog lists the models opponents can be played by
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]ollama_client.Model, error)
	Ping(ctx context.Context) error
}

// ArchiveHealth reports the state of the history archive
type ArchiveHealth interface {
	Health() archive.HealthStatus
}

// CreateSessionRequest is the body of POST /api/sessions. Missing table
// settings fall back to the configured defaults.
type CreateSessionRequest struct {
	HumanName          string             `json:"human_name,omitempty"`
	Opponents          []session.Opponent `json:"opponents"`
	StartingStack      *int               `json:"starting_stack,omitempty"`
	SmallBlind         *int               `json:"small_blind,omitempty"`
	BigBlind           *int               `json:"big_blind,omitempty"`
	NumHands           *int               `json:"num_hands,omitempty"`
	TurnTimeoutSeconds *int               `json:"turn_timeout_seconds,omitempty"`
	Seed               int64              `json:"seed,omitempty"`
}

type CreateSessionResponse struct {
	SessionID    string               `json:"session_id"`
	WebsocketURL string               `json:"websocket_url"`
	Players      []session.PlayerSlot `json:"players"`
}

type ModelsResponse struct {
	Models []ollama_client.Model `json:"models"`
}

type HealthResponse struct {
	Status          string                `json:"status"`
	OllamaConnected bool                  `json:"ollama_connected"`
	ActiveSessions  int                   `json:"active_sessions"`
	Archive         *archive.HealthStatus `json:"archive,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SessionsHandler serves the session admission API
type SessionsHandler struct {
	sessions Sessions
	defaults session.Config
	presets  map[string]session.Opponent
	models   ModelCatalog
	archive  ArchiveHealth
}

// NewSessionsHandler creates a handler. defaults.Opponents doubles as the
// opponent presets: a requested opponent with only a name borrows the preset's
// model and temperature.
func NewSessionsHandler(sessions Sessions, defaults session.Config, models ModelCatalog, health ArchiveHealth) *SessionsHandler {
	presets := make(map[string]session.Opponent, len(defaults.Opponents))
	for _, o := range defaults.Opponents {
		presets[strings.ToLower(o.Name)] = o
	}
	return &SessionsHandler{
		sessions: sessions,
		defaults: defaults,
		presets:  presets,
		models:   models,
		archive:  health,
	}
}

func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{sessionID}", h.HandleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{sessionID}", h.HandleDeleteSession)
	mux.HandleFunc("GET /api/models", h.HandleListModels)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
}

// HandleCreateSession handles POST /api/sessions
func (h *SessionsHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	cfg := h.tableConfig(req)
	id, err := h.sessions.Create(cfg)
	if err != nil {
		if errors.Is(err, session.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	sess, err := h.sessions.Get(id)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("created session vanished")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:    id,
		WebsocketURL: "/ws/" + id,
		Players:      sess.Status().Players,
	})
}

func (h *SessionsHandler) tableConfig(req CreateSessionRequest) session.Config {
	cfg := h.defaults
	cfg.Opponents = nil
	cfg.Deck = nil
	cfg.Seed = req.Seed

	if req.HumanName != "" {
		cfg.HumanName = req.HumanName
	}
	if req.StartingStack != nil {
		cfg.StartingStack = *req.StartingStack
	}
	if req.SmallBlind != nil {
		cfg.SmallBlind = *req.SmallBlind
	}
	if req.BigBlind != nil {
		cfg.BigBlind = *req.BigBlind
	}
	if req.NumHands != nil {
		cfg.HandLimit = *req.NumHands
	}
	if req.TurnTimeoutSeconds != nil {
		cfg.TurnTimeout = time.Duration(*req.TurnTimeoutSeconds) * time.Second
	}

	if len(req.Opponents) == 0 {
		cfg.Opponents = append(cfg.Opponents, h.defaults.Opponents...)
		return cfg
	}
	for _, o := range req.Opponents {
		if preset, ok := h.presets[strings.ToLower(o.Name)]; ok {
			if o.Model == "" {
				o.Model = preset.Model
			}
			if o.Temperature == 0 {
				o.Temperature = preset.Temperature
			}
		}
		cfg.Opponents = append(cfg.Opponents, o)
	}
	return cfg
}

// HandleGetSession handles GET /api/sessions/{sessionID}
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

// HandleDeleteSession handles DELETE /api/sessions/{sessionID}
func (h *SessionsHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	if _, err := h.sessions.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.sessions.Remove(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleListModels handles GET /api/models
func (h *SessionsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		writeError(w, http.StatusServiceUnavailable, "no model catalog configured")
		return
	}
	models, err := h.models.ListModels(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to list models")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}

// HandleHealth handles GET /api/health
func (h *SessionsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		ActiveSessions: h.sessions.Len(),
	}

	if h.models != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		resp.OllamaConnected = h.models.Ping(ctx) == nil
		cancel()
	}
	if !resp.OllamaConnected {
		resp.Status = "degraded"
	}

	if h.archive != nil {
		status := h.archive.Health()
		resp.Archive = &status
		if !status.Healthy {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
