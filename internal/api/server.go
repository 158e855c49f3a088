// Package api serves the dashboard REST endpoints and mounts the websocket hub.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pable/versus-overlay/internal/hub"
	"github.com/pable/versus-overlay/internal/ingest"
	"github.com/pable/versus-overlay/internal/model"
	"github.com/pable/versus-overlay/internal/overlay"
)

// ClientHeader lets HTTP callers name themselves so their own update is not
// echoed back over the websocket.
const ClientHeader = "X-Client-Id"

const maxBody = 64 << 10

// Ingester triggers a sheet fetch on demand.
type Ingester interface {
	RunOnce(ctx context.Context) (model.IngestRun, error)
}

// RunLog lists recent ingest runs.
type RunLog interface {
	ListIngestRuns(limit int) ([]model.IngestRun, error)
}

// Server exposes the overlay store over HTTP and the websocket hub.
type Server struct {
	store  *overlay.Store
	hub    *hub.Hub
	ingest Ingester // optional
	runs   RunLog   // optional
	logger *log.Logger
}

// NewServer wires the hub's inbound events to store and returns the server.
// ing and runs may be nil.
func NewServer(store *overlay.Store, h *hub.Hub, ing Ingester, runs RunLog, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:  store,
		hub:    h,
		ingest: ing,
		runs:   runs,
		logger: logger.WithPrefix("api"),
	}
	h.On(overlay.EventUpdateData, s.onUpdateData)
	h.On(overlay.EventStateRequest, s.onStateRequest)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Handle("/ws", s.hub)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)
		r.Post("/state", s.handlePostState)
		r.Post("/state/reset", s.handleResetState)
		r.Get("/players", s.handlePlayers)
		r.Get("/levels", s.handleLevels)
		r.Get("/stats/{player}", s.handleStats)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/ingest", s.handleIngestRuns)
		r.Post("/ingest", s.handleIngest)
	})
	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// onUpdateData applies a dashboard patch. A sender that tags the message with
// a client id is excluded from the resulting broadcast; an untagged sender
// gets the update echoed back like everyone else.
func (s *Server) onUpdateData(from *hub.Client, msg hub.Message) {
	p, ignored, err := overlay.DecodePatch(msg.Data)
	if err != nil {
		s.logger.Warn("rejecting update", "client", from.ID(), "err", err)
		return
	}
	if len(ignored) > 0 {
		s.logger.Warn("ignoring unknown keys", "client", from.ID(), "keys", ignored)
	}
	exclude := ""
	if msg.ClientID != "" {
		exclude = from.ID()
	}
	s.store.ApplyPatch(p, exclude)
}

// onStateRequest answers only the requester.
func (s *Server) onStateRequest(from *hub.Client, msg hub.Message) {
	upd := overlay.Update{State: s.store.State(), SocketID: from.ID()}
	if err := s.hub.Send(from.ID(), overlay.EventUpdate, upd); err != nil {
		s.logger.Warn("state reply", "client", from.ID(), "err", err)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+ClientHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", message)
	}
	writeJSON(w, status, map[string]any{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Clients(),
		"players": len(s.store.Players()),
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.State())
}

func (s *Server) handlePostState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	p, ignored, err := overlay.DecodePatch(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ignored) > 0 {
		s.logger.Warn("ignoring unknown keys", "keys", ignored)
	}
	origin := strings.TrimSpace(r.Header.Get(ClientHeader))
	writeJSON(w, http.StatusOK, s.store.ApplyPatch(p, origin))
}

func (s *Server) handleResetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Reset())
}

func (s *Server) handlePlayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Players())
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Levels())
}

type statsResponse struct {
	Player      string  `json:"player"`
	Level       string  `json:"level"`
	Found       bool    `json:"found"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	PB          int     `json:"pb"`
	AverageTime float64 `json:"averageTime"`
	WinLoss     string  `json:"winLoss"`
	PBText      string  `json:"pbText"`
	AverageText string  `json:"averageText"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	level := strings.TrimSpace(r.URL.Query().Get("level"))
	if level == "" {
		s.writeError(w, http.StatusBadRequest, "missing level")
		return
	}
	st, ok := s.store.Stats(player, level)
	wl, pb, avg := overlay.FormatStats(st, ok)
	writeJSON(w, http.StatusOK, statsResponse{
		Player:      player,
		Level:       level,
		Found:       ok,
		Wins:        st.Wins,
		Losses:      st.Losses,
		PB:          st.PB,
		AverageTime: st.AverageTime,
		WinLoss:     wl,
		PBText:      pb,
		AverageText: avg,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	level := strings.TrimSpace(r.URL.Query().Get("level"))
	if level == "" {
		s.writeError(w, http.StatusBadRequest, "missing level")
		return
	}
	lines := s.store.Leaderboard(level)
	out := make([]statsResponse, 0, len(lines))
	for _, l := range lines {
		wl, pb, avg := overlay.FormatStats(l.Stats, true)
		out = append(out, statsResponse{
			Player:      l.Name,
			Level:       level,
			Found:       true,
			Wins:        l.Stats.Wins,
			Losses:      l.Stats.Losses,
			PB:          l.Stats.PB,
			AverageTime: l.Stats.AverageTime,
			WinLoss:     wl,
			PBText:      pb,
			AverageText: avg,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []model.IngestRun{})
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	runs, err := s.runs.ListIngestRuns(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no spreadsheet configured")
		return
	}
	run, err := s.ingest.RunOnce(r.Context())
	switch {
	case errors.Is(err, ingest.ErrBusy):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}
