package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/encounter-sync/internal/domain"
	"github.com/encounter-sync/internal/service"
	"github.com/encounter-sync/internal/websocket"
)

// Handler provides HTTP handlers for the encounter sync API
type Handler struct {
	service *service.EncounterService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.EncounterService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Real-time endpoints
	r.Get("/ws", h.HandleWebSocket)
	r.Get("/events/{gameID}", h.HandleSSE)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/reference/{collection}", h.GetReference)

		r.Route("/games", func(r chi.Router) {
			r.Post("/", h.CreateGame)

			r.Route("/{gameID}", func(r chi.Router) {
				r.Get("/", h.GetGame)
				r.Get("/chat", h.GetChat)
				r.Post("/chat", h.SendChat)

				r.Route("/encounters", func(r chi.Router) {
					r.Get("/", h.ListEncounters)
					r.Post("/", h.CreateEncounter)

					r.Route("/{encounterID}", func(r chi.Router) {
						r.Put("/", h.UpdateEncounter)
						r.Delete("/", h.DeleteEncounter)

						r.Post("/monsters", h.AddMonster)
						r.Put("/monsters/instances/{instanceID}", h.UpdateMonsterInstance)

						r.Post("/participants", h.JoinEncounter)
						r.Delete("/participants/{participantID}", h.LeaveEncounter)

						r.Put("/initiative", h.SetInitiative)
						r.Post("/turn/advance", h.AdvanceTurn)
					})
				})
			})
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requesterID extracts the caller's identity. The authentication flow lives
// upstream; by the time a request lands here the gateway has stamped the
// user ID header.
func requesterID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to a status code
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrNotDM):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrParticipantExists):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrEmptyTurnOrder):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("failed to "+action, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// CreateGame handles game creation
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.DMID == "" {
		req.DMID = requesterID(r)
	}

	game, err := h.service.CreateGame(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "create game")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: game})
}

// GetGame returns a game with its counts
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	meta, err := h.service.GetGameMeta(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "get game")
		return
	}

	h.writeSuccess(w, meta)
}

// ListEncounters returns all encounters for a game
func (h *Handler) ListEncounters(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	encounters, err := h.service.ListEncounters(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "list encounters")
		return
	}

	h.writeSuccess(w, encounters)
}

// CreateEncounter handles encounter creation
func (h *Handler) CreateEncounter(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	var req domain.CreateEncounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	enc, err := h.service.CreateEncounter(r.Context(), gameID, requesterID(r), req)
	if err != nil {
		h.writeServiceError(w, err, "create encounter")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: enc})
}

// UpdateEncounter handles partial encounter updates
func (h *Handler) UpdateEncounter(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")

	var req domain.UpdateEncounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	enc, err := h.service.UpdateEncounter(r.Context(), gameID, encounterID, requesterID(r), req)
	if err != nil {
		h.writeServiceError(w, err, "update encounter")
		return
	}

	h.writeSuccess(w, enc)
}

// DeleteEncounter handles encounter deletion
func (h *Handler) DeleteEncounter(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")

	if err := h.service.DeleteEncounter(r.Context(), gameID, encounterID, requesterID(r)); err != nil {
		h.writeServiceError(w, err, "delete encounter")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// AddMonster adds a monster with its instances to an encounter
func (h *Handler) AddMonster(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")

	var req domain.AddMonsterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	monster, err := h.service.AddMonster(r.Context(), gameID, encounterID, requesterID(r), req)
	if err != nil {
		h.writeServiceError(w, err, "add monster")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: monster})
}

// UpdateMonsterInstance patches a monster instance's HP or initiative
func (h *Handler) UpdateMonsterInstance(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")
	instanceID := chi.URLParam(r, "instanceID")

	var req domain.UpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	inst, err := h.service.UpdateMonsterInstance(r.Context(), gameID, encounterID, instanceID, requesterID(r), req)
	if err != nil {
		h.writeServiceError(w, err, "update monster instance")
		return
	}

	h.writeSuccess(w, inst)
}

// JoinEncounter adds a character to an encounter
func (h *Handler) JoinEncounter(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")

	var req domain.JoinEncounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	p, err := h.service.JoinEncounter(r.Context(), gameID, encounterID, req)
	if err != nil {
		h.writeServiceError(w, err, "join encounter")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: p})
}

// LeaveEncounter removes a participant from an encounter
func (h *Handler) LeaveEncounter(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")
	participantID := chi.URLParam(r, "participantID")

	if err := h.service.LeaveEncounter(r.Context(), gameID, encounterID, participantID, requesterID(r)); err != nil {
		h.writeServiceError(w, err, "leave encounter")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "removed"})
}

// SetInitiative sets a participant's initiative value
func (h *Handler) SetInitiative(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")

	var req domain.SetInitiativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	p, err := h.service.SetInitiative(r.Context(), gameID, encounterID, requesterID(r), req)
	if err != nil {
		h.writeServiceError(w, err, "set initiative")
		return
	}

	h.writeSuccess(w, p)
}

// AdvanceTurn moves the encounter's turn pointer forward
func (h *Handler) AdvanceTurn(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	encounterID := chi.URLParam(r, "encounterID")

	enc, err := h.service.AdvanceTurn(r.Context(), gameID, encounterID, requesterID(r))
	if err != nil {
		h.writeServiceError(w, err, "advance turn")
		return
	}

	h.writeSuccess(w, enc)
}

// GetChat returns a game's recent chat messages
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	h.writeSuccess(w, h.service.RecentChat(gameID))
}

// SendChat posts a chat message to a game
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	var req domain.SendChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	msg, err := h.service.SendChat(r.Context(), gameID, requesterID(r), req)
	if err != nil {
		h.writeServiceError(w, err, "send chat")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: msg})
}
