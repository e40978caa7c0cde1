package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/roblox"
	"github.com/roblox-funapp/internal/service"
	"github.com/roblox-funapp/internal/session"
	"github.com/roblox-funapp/internal/websocket"
)

// Error messages shown to players
const (
	msgUsernameRequired  = "Username required!"
	msgUserNotFound      = "User not found! Check spelling and try again."
	msgRobloxAPIError    = "Roblox API error. Try again in a moment."
	msgUserDetailsFailed = "Failed to get user details"
	msgFetchUserFailed   = "Failed to fetch user data"
	msgUserDataRequired  = "User data required!"
	msgRoastFailed       = "Failed to generate roast"
	msgPlayersRequired   = "Two players required!"
	msgBattleFailed      = "Battle failed!"
	msgImageFailed       = "Failed to generate image"
	msgChatFailed        = "Failed to chat with AI"
	msgMemeFailed        = "Failed to generate meme"
	msgSessionInvalid    = "Invalid session data"
	msgMethodNotAllowed  = "Method not allowed"
)

// maxBodyBytes caps request bodies; chat histories are the largest payloads
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for the fun app API
type Handler struct {
	service *service.FunService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.FunService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
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

	// Player stats and jokes
	r.Get("/user", h.GetUser)
	r.Post("/roast", h.Roast)
	r.Post("/battle", h.Battle)
	r.Post("/image", h.Image)
	r.Get("/fact", h.Fact)
	r.Get("/meme", h.Meme)

	// Game builder
	r.Post("/game-chat", h.GameChat)
	r.HandleFunc("/game-session", h.GameSession)

	// WebSocket endpoints
	r.Get("/ws/game-session", h.HandleWebSocket)
	r.Get("/ws/stats", h.GetWebSocketStats)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}

// decode reads a JSON body into v
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// HandleWebSocket upgrades a game page so it hears about session edits
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r, sessionID(r))
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_connections": h.hub.TotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetUser looks up a Roblox player by username
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if strings.TrimSpace(username) == "" {
		h.writeError(w, http.StatusBadRequest, msgUsernameRequired)
		return
	}

	profile, err := h.service.LookupProfile(r.Context(), username)
	if err != nil {
		var upstream *domain.UpstreamError
		switch {
		case domain.IsNotFoundError(err):
			h.writeError(w, http.StatusNotFound, msgUserNotFound)
		case errors.As(err, &upstream) && upstream.Service == roblox.ServiceUsernameLookup:
			h.logger.Warn("roblox username lookup failed", "username", username, "error", err)
			h.writeError(w, upstream.Status, msgRobloxAPIError)
		case errors.As(err, &upstream) && upstream.Service == roblox.ServiceUserDetails:
			h.logger.Warn("roblox user details failed", "username", username, "error", err)
			h.writeError(w, upstream.Status, msgUserDetailsFailed)
		default:
			h.logger.Error("failed to fetch user", "username", username, "error", err)
			h.writeError(w, http.StatusInternalServerError, msgFetchUserFailed)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// Roast generates a roast for a player
func (h *Handler) Roast(w http.ResponseWriter, r *http.Request) {
	var req domain.RoastRequest
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Username) == "" {
		h.writeError(w, http.StatusBadRequest, msgUserDataRequired)
		return
	}

	roast, err := h.service.Roast(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to generate roast", "username", req.Username, "error", err)
		h.writeError(w, http.StatusInternalServerError, msgRoastFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, roast)
}

// Battle compares two players
func (h *Handler) Battle(w http.ResponseWriter, r *http.Request) {
	var req domain.BattleRequest
	if err := decode(w, r, &req); err != nil || req.Player1 == nil || req.Player2 == nil {
		h.writeError(w, http.StatusBadRequest, msgPlayersRequired)
		return
	}

	result, err := h.service.Battle(r.Context(), req)
	if err != nil {
		h.logger.Error("battle failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, msgBattleFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Image generates a meme image for a player
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	var req domain.ImageRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, msgUserDataRequired)
		return
	}

	url, err := h.service.Image(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, msgUserDataRequired)
			return
		}
		h.logger.Error("failed to generate image", "username", req.Username, "error", err)
		h.writeError(w, http.StatusInternalServerError, msgImageFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"imageUrl": url})
}

// Fact returns a random gaming fact
func (h *Handler) Fact(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"fact": h.service.Fact()})
}

// Meme returns a one-sentence gaming meme
func (h *Handler) Meme(w http.ResponseWriter, r *http.Request) {
	meme, err := h.service.Meme(r.Context())
	if err != nil {
		h.logger.Error("failed to generate meme", "error", err)
		h.writeError(w, http.StatusInternalServerError, msgMemeFailed)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"meme": meme})
}

// GameChat runs one game builder turn
func (h *Handler) GameChat(w http.ResponseWriter, r *http.Request) {
	var req domain.GameChatRequest
	if err := decode(w, r, &req); err != nil {
		h.logger.Warn("invalid game chat body", "error", err)
		h.writeError(w, http.StatusInternalServerError, msgChatFailed)
		return
	}

	result, err := h.service.GameChat(r.Context(), req)
	if err != nil {
		h.logger.Error("game chat failed", "session_id", req.SessionID, "error", err)
		h.writeError(w, http.StatusInternalServerError, msgChatFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GameSession serves, replaces or clears a session's customized game
func (h *Handler) GameSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(h.service.RenderSession(id)))

	case http.MethodPost:
		var req domain.SessionUpdateRequest
		if err := decode(w, r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, msgSessionInvalid)
			return
		}
		var patches domain.SessionPatchSet
		if req.SessionData != nil {
			patches = *req.SessionData
		}
		h.service.SaveSession(id, patches)
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	case http.MethodDelete:
		h.service.ClearSession(id)
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		h.writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	}
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("sessionId")); id != "" {
		return id
	}
	return session.DefaultID
}
