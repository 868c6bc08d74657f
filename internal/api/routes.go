package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fuellog-sync-service/internal/config"
	"fuellog-sync-service/internal/store"
	syncpkg "fuellog-sync-service/internal/sync"
)

// Handler exposes the local REST surface consumed by the mobile shell.
type Handler struct {
	cfg     config.ServerConfig
	store   store.Store
	engine  *syncpkg.Engine
	tracker *syncpkg.StatusTracker
	hub     *Hub
}

func NewHandler(cfg config.ServerConfig, st store.Store, engine *syncpkg.Engine, tracker *syncpkg.StatusTracker, hub *Hub) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   st,
		engine:  engine,
		tracker: tracker,
		hub:     hub,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)
	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware(h.cfg.AuthToken))

		r.Post("/fuel-events", h.EnqueueFuelEvent)

		r.Get("/queue", h.ListQueue)
		r.Get("/queue/count", h.QueueCount)
		r.Delete("/queue", h.ClearQueue)
		r.Delete("/queue/{id}", h.RemoveQueued)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.SyncStatus)
		r.Get("/sync/conflicts", h.ListConflicts)
		r.Post("/sync/conflicts/{id}/resolve", h.ResolveConflict)
		r.Get("/sync/history", h.SyncHistory)

		r.Post("/network", h.ReportNetwork)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// EnqueueFuelEvent buffers a fuel event locally and, when the device is
// online, kicks off a background drain so the record reaches the server
// without waiting for the next scheduled pass.
func (h *Handler) EnqueueFuelEvent(w http.ResponseWriter, r *http.Request) {
	var payload store.FuelEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.store.Enqueue(r.Context(), payload)
	if err != nil {
		if errors.Is(err, store.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if h.tracker.Online() {
		go h.drainInBackground()
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if records == nil {
		records = []*store.QueuedRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) QueueCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) RemoveQueued(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Remove(r.Context(), id); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.engine.ForgetConflict(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.DrainQueue(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":      h.tracker.Online(),
		"was_offline": h.tracker.WasOffline(),
		"draining":    h.engine.Draining(),
		"queued":      count,
		"conflicts":   len(h.engine.PendingConflicts()),
	})
}

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.engine.PendingConflicts()
	if conflicts == nil {
		conflicts = []*syncpkg.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	choice := syncpkg.Resolution(body.Choice)
	if !choice.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid resolution choice: "+body.Choice)
		return
	}

	conflict := h.engine.PendingConflict(id)
	if conflict == nil {
		writeError(w, http.StatusNotFound, "no pending conflict for record "+id)
		return
	}

	outcome, err := h.engine.Resolve(r.Context(), conflict, choice)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.DrainHistory(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if history == nil {
		history = []*store.DrainRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

// ReportNetwork receives reachability transitions from the host shell.
func (h *Handler) ReportNetwork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The reconnect drain must outlive this request.
	h.tracker.SetOnline(context.Background(), body.Online)
	if h.hub != nil {
		h.hub.NetworkChanged(body.Online, h.tracker.WasOffline())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":      h.tracker.Online(),
		"was_offline": h.tracker.WasOffline(),
	})
}

func (h *Handler) drainInBackground() {
	if _, err := h.engine.DrainQueue(context.Background()); err != nil {
		// Storage failures surface on the next explicit trigger.
		return
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := "*"
	if len(origins) > 0 {
		allowed = strings.Join(origins, ", ")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				// Auth disabled; the server binds to localhost by default.
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") ||
				strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) != token {
				writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
