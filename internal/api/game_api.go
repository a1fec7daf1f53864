package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/rivals/internal/app/arbiter"
	"github.com/tutu-network/rivals/internal/app/engagement"
	"github.com/tutu-network/rivals/internal/domain"
)

// ─── Views ──────────────────────────────────────────────────────────────────

// StateView is the body of GET /api/state.
type StateView struct {
	Today          domain.Date              `json:"today"`
	Generation     uint64                   `json:"generation"`
	Player         domain.Player            `json:"player"`
	Progress       engagement.LevelProgress `json:"progress"`
	Multiplier     float64                  `json:"xp_multiplier"`
	Streak         int                      `json:"streak"`
	Rivals         []domain.Rival           `json:"rivals"`
	Tasks          []domain.Task            `json:"tasks"`
	Achievements   []domain.Achievement     `json:"achievements"`
	Notifications  []domain.Notification    `json:"notifications"`
	Unread         int                      `json:"unread"`
	SummaryPending bool                     `json:"summary_pending"`
}

func (s *Server) view() StateView {
	snap := s.game.Snapshot()
	_, pending := s.game.PendingSummary()
	return StateView{
		Today:          s.game.Today(),
		Generation:     snap.Generation,
		Player:         snap.Player,
		Progress:       engagement.Progress(snap.Player.XP),
		Multiplier:     engagement.StreakMultiplier(snap.Streak),
		Streak:         snap.Streak,
		Rivals:         snap.Rivals,
		Tasks:          snap.Tasks,
		Achievements:   snap.Achievements,
		Notifications:  snap.Notifications,
		Unread:         snap.UnreadCount(),
		SummaryPending: pending,
	}
}

// ─── State ──────────────────────────────────────────────────────────────────

// GET /api/state. Reading the state counts as the player showing up, so it
// schedules a pass; the response is the state as of now.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.game.Observe()
	writeJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.game.Reconcile(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":     res.PathString(),
		"changed":  res.Changed,
		"summary":  res.Summary,
		"unlocked": res.Unlocked,
		"state":    s.view(),
	})
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Difficulty string `json:"difficulty"`
		Duration   int    `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	d, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	task, err := s.game.AddTask(r.Context(), arbiter.NewTask{Name: req.Name, Difficulty: d, Duration: req.Duration})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.game.StartTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	v, err := s.game.CompleteTask(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrAntiCheat) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": map[string]interface{}{
				"message": v.Justification,
				"type":    "anti_cheat",
			},
			"verdict": v,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verdict": v,
		"player":  s.game.Snapshot().Player,
	})
}

// ─── Summary ────────────────────────────────────────────────────────────────

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.game.PendingSummary()
	if !ok {
		writeDomainError(w, domain.ErrSummaryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAckSummary(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: "+err.Error())
		return
	}
	sum, err := s.game.AckSummary(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSummaryHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "summary history is not available")
		return
	}
	limit := 7
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 365")
			return
		}
		limit = n
	}
	list, err := s.history(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.DailySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": list,
	})
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"` // empty marks all
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	n, err := s.game.MarkNotificationsRead(r.Context(), req.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"marked": n,
	})
}

// ─── Errors ─────────────────────────────────────────────────────────────────

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrSummaryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTaskCompleted), errors.Is(err, domain.ErrTaskAlreadyStarted),
		errors.Is(err, domain.ErrSummaryMismatch), errors.Is(err, domain.ErrDayNotClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAntiCheat), errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrInvalidTask), errors.Is(err, domain.ErrTaskNotTimeLocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEngineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
