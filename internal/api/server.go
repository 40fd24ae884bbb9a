// Package api exposes the plan engine over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"meal-plan-assistant/internal/app"
	"meal-plan-assistant/internal/command"
	"meal-plan-assistant/internal/foodinfo"
	"meal-plan-assistant/internal/gesture"
	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planapi"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
	"meal-plan-assistant/internal/swap"
	"meal-plan-assistant/internal/undo"
)

// Service is the application surface the server calls.
type Service interface {
	Plan(ctx context.Context, owner, date string) (planner.DayPlan, error)
	Drag(ctx context.Context, ev gesture.DragEvent) (gesture.Outcome, error)
	Chat(ctx context.Context, owner, date, text string) (app.Result, error)
	Run(ctx context.Context, owner, date string, action command.Action) app.Result
	Undo(ctx context.Context, owner string) (app.Result, error)
	History(owner string) []undo.Entry
	ApplySwap(ctx context.Context, planID, targetItemID string, replacement planner.PlanItem) (planner.DayPlan, error)
	ChangeSwapFilters(ctx context.Context, owner string, filters swap.Filters) (app.Result, error)
	DiscardSwap(ctx context.Context, owner string) (app.Result, error)
}

// Server routes HTTP requests to the Service.
type Server struct {
	service Service
	swapKey string
	mux     *http.ServeMux
}

// NewServer creates a Server. When swapKey is set, swap apply requests must
// carry a bearer token signed with it.
func NewServer(service Service, swapKey string) *Server {
	s := &Server{service: service, swapKey: swapKey, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	s.mux.HandleFunc("GET /api/plans/{owner}/{date}", s.handleGetPlan)
	s.mux.HandleFunc("POST /api/plans/{owner}/{date}/drag", s.handleDrag)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/undo", s.handleUndo)
	s.mux.HandleFunc("GET /api/undo", s.handleHistory)
	s.mux.HandleFunc("POST /api/swaps/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/swaps/filters", s.handleFilters)
	s.mux.HandleFunc("DELETE /api/swaps", s.handleDiscard)
	s.mux.HandleFunc("POST /plans/{planId}/swap", s.handleApplySwap)
	return s
}

// Mount adds another handler, such as a bot webhook, to the same mux.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.service.Plan(r.Context(), r.PathValue("owner"), r.PathValue("date"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source gesture.Endpoint `json:"source"`
		Target gesture.Endpoint `json:"target"`
		Edge   gesture.Edge     `json:"edge"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	date := r.PathValue("date")
	if body.Source.Date == "" {
		body.Source.Date = date
	}
	if body.Target.Date == "" {
		body.Target.Date = date
	}

	outcome, err := s.service.Drag(r.Context(), gesture.DragEvent{
		Owner:  r.PathValue("owner"),
		Source: body.Source,
		Target: body.Target,
		Edge:   body.Edge,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner string `json:"owner"`
		Date  string `json:"date"`
		Text  string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Owner == "" || body.Text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "owner and text are required")
		return
	}
	if body.Date == "" {
		body.Date = time.Now().Format(planner.DateLayout)
	}

	res, err := s.service.Chat(r.Context(), body.Owner, body.Date, body.Text)
	if err != nil {
		log.Printf("api: chat for %s failed: %v", body.Owner, err)
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner string `json:"owner"`
	}
	if err := decodeBody(r, &body); err != nil || body.Owner == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "owner is required")
		return
	}

	res, err := s.service.Undo(r.Context(), body.Owner)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type historyEntry struct {
	Description string    `json:"description"`
	Dates       []string  `json:"dates"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "owner is required")
		return
	}

	entries := []historyEntry{}
	for _, e := range s.service.History(owner) {
		he := historyEntry{Description: e.Description, Timestamp: e.Timestamp}
		for _, snap := range e.Snapshots {
			he.Dates = append(he.Dates, snap.Date)
		}
		entries = append(entries, he)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner  string `json:"owner"`
		Date   string `json:"date"`
		Option int    `json:"option"`
	}
	if err := decodeBody(r, &body); err != nil || body.Owner == "" || body.Date == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "owner, date and option are required")
		return
	}

	res := s.service.Run(r.Context(), body.Owner, body.Date, command.ApplySwapOption{Option: body.Option})
	status := http.StatusOK
	if res.Declined {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner   string       `json:"owner"`
		Filters swap.Filters `json:"filters"`
	}
	if err := decodeBody(r, &body); err != nil || body.Owner == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "owner and filters are required")
		return
	}

	res, err := s.service.ChangeSwapFilters(r.Context(), body.Owner, body.Filters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "owner is required")
		return
	}

	res, err := s.service.DiscardSwap(r.Context(), owner)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleApplySwap(w http.ResponseWriter, r *http.Request) {
	if s.swapKey != "" {
		if err := planapi.VerifyToken(s.swapKey, r.Header.Get("Authorization")); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing token")
			return
		}
	}

	var body planapi.SwapRequest
	if err := decodeBody(r, &body); err != nil || body.TargetItemID == "" || body.Replacement.Food.ID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "target_item_id and replacement are required")
		return
	}

	plan, err := s.service.ApplySwap(r.Context(), r.PathValue("planId"), body.TargetItemID, body.Replacement)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planner.CommitResult{Success: true, Data: plan})
}

// writeFailure maps an engine error to a status code and a user message.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, mutation.ErrInvalidIndex), errors.Is(err, mutation.ErrNoOpRequested), errors.Is(err, swap.ErrInvalidSelection):
		status, code = http.StatusUnprocessableEntity, "DECLINED"
	case errors.Is(err, mutation.ErrMissingTarget), errors.Is(err, swap.ErrNoPendingSwap),
		errors.Is(err, swap.ErrSuperseded), errors.Is(err, plansync.ErrNothingToUndo):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, swap.ErrOptionsUnavailable), errors.Is(err, foodinfo.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, plansync.ErrPersistFailure):
		status, code = http.StatusBadGateway, "PERSIST_FAILED"
	case errors.Is(err, planner.ErrInvalidDate), errors.Is(err, gesture.ErrInvalidEvent):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: request failed: %v", err)
	}
	writeError(w, status, code, app.UserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":  code,
		"error": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("missing JSON body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID, r.Method, r.URL.Path, writer.status, time.Since(started).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
