// Package httpapi exposes the session service over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/session"
)

// maxRequestBody bounds request payload size.
const maxRequestBody = 1 << 20

// GameService is the session surface the API serves.
type GameService interface {
	StartSession(ctx context.Context, req session.StartRequest) (session.StartResult, error)
	AdvanceRound(ctx context.Context, sessionID string) (session.RoundReport, error)
	Status(ctx context.Context, sessionID string) (session.StatusReport, error)
	History(ctx context.Context, sessionID string) (session.HistoryReport, error)
	ListSessions(ctx context.Context) ([]session.Summary, error)
}

// Server serves the game API.
type Server struct {
	svc GameService
}

// New creates an API server over a game service.
func New(svc GameService) *Server {
	return &Server{svc: svc}
}

// Handler returns the API routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start-session", s.handleStartSession)
	mux.HandleFunc("POST /api/next-turn", s.handleNextTurn)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

type participantPayload struct {
	ID            string `json:"id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Role          string `json:"role"`
	Provider      string `json:"provider"`
	SpeakingOrder *int   `json:"speaking_order,omitempty"`
}

type startSessionRequest struct {
	Topic        string               `json:"topic"`
	SecretWord   string               `json:"secret_word,omitempty"`
	GuessBudget  int                  `json:"guess_budget,omitempty"`
	Participants []participantPayload `json:"participants"`
}

type startSessionResponse struct {
	SessionID    string               `json:"session_id"`
	Topic        string               `json:"topic"`
	GuessBudget  int                  `json:"guess_budget"`
	CreatedAt    time.Time            `json:"created_at"`
	Participants []participantPayload `json:"participants"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	specs := make([]session.ParticipantSpec, 0, len(req.Participants))
	for _, p := range req.Participants {
		specs = append(specs, session.ParticipantSpec{
			ID:            p.ID,
			DisplayName:   p.DisplayName,
			Role:          domain.Role(p.Role),
			Provider:      p.Provider,
			SpeakingOrder: p.SpeakingOrder,
		})
	}

	result, err := s.svc.StartSession(r.Context(), session.StartRequest{
		Topic:        req.Topic,
		SecretWord:   req.SecretWord,
		GuessBudget:  req.GuessBudget,
		Participants: specs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{
		SessionID:    result.SessionID,
		Topic:        result.Topic,
		GuessBudget:  result.GuessBudget,
		CreatedAt:    result.CreatedAt,
		Participants: toParticipantPayloads(result.Participants),
	})
}

type nextTurnRequest struct {
	SessionID string `json:"session_id"`
}

type entryPayload struct {
	Turn            int    `json:"turn"`
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	VisibleText     string `json:"visible_text"`
}

type outcomePayload struct {
	ParticipantID     string `json:"participant_id"`
	ParticipantName   string `json:"participant_name"`
	Correct           bool   `json:"correct"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

type skipPayload struct {
	ParticipantID string `json:"participant_id"`
	Category      string `json:"category"`
	Detail        string `json:"detail"`
}

type nextTurnResponse struct {
	SessionID string           `json:"session_id"`
	Turn      int              `json:"turn"`
	GameOver  bool             `json:"game_over"`
	Status    string           `json:"status,omitempty"`
	Entries   []entryPayload   `json:"entries"`
	Guesses   []outcomePayload `json:"guesses,omitempty"`
	Skips     []skipPayload    `json:"skips,omitempty"`
}

func (s *Server) handleNextTurn(w http.ResponseWriter, r *http.Request) {
	var req nextTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, string(session.CodeInvalidRequest), "session_id is required")
		return
	}

	report, err := s.svc.AdvanceRound(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := nextTurnResponse{
		SessionID: report.SessionID,
		Turn:      report.Turn,
		GameOver:  report.GameOver,
		Status:    string(report.GameStatus),
		Entries:   make([]entryPayload, 0, len(report.Entries)),
	}
	for _, entry := range report.Entries {
		resp.Entries = append(resp.Entries, entryPayload{
			Turn:            entry.Turn,
			ParticipantID:   entry.ParticipantID,
			ParticipantName: entry.ParticipantName,
			VisibleText:     entry.VisibleText,
		})
	}
	for _, outcome := range report.Outcomes {
		resp.Guesses = append(resp.Guesses, outcomePayload{
			ParticipantID:     outcome.ParticipantID,
			ParticipantName:   outcome.ParticipantName,
			Correct:           outcome.Correct,
			AttemptsRemaining: outcome.AttemptsRemaining,
		})
	}
	for _, skip := range report.Skips {
		resp.Skips = append(resp.Skips, skipPayload{
			ParticipantID: skip.ParticipantID,
			Category:      skip.Category,
			Detail:        skip.Detail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	SessionID         string               `json:"session_id"`
	Topic             string               `json:"topic"`
	RoundsCompleted   int                  `json:"rounds_completed"`
	GameOver          bool                 `json:"game_over"`
	Status            string               `json:"status,omitempty"`
	SecretWord        string               `json:"secret_word,omitempty"`
	Participants      []participantPayload `json:"participants"`
	AttemptsRemaining map[string]int       `json:"attempts_remaining"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID:         status.SessionID,
		Topic:             status.Topic,
		RoundsCompleted:   status.RoundsCompleted,
		GameOver:          status.GameOver,
		Status:            string(status.GameStatus),
		SecretWord:        status.SecretWord,
		Participants:      toParticipantPayloads(status.Participants),
		AttemptsRemaining: status.AttemptsRemaining,
	})
}

type historyEntryPayload struct {
	Turn             int    `json:"turn"`
	ParticipantID    string `json:"participant_id"`
	ParticipantName  string `json:"participant_name"`
	VisibleText      string `json:"visible_text"`
	PrivateReasoning string `json:"private_reasoning,omitempty"`
}

type historyGuessPayload struct {
	Turn                   int    `json:"turn"`
	ParticipantID          string `json:"participant_id"`
	GuessText              string `json:"guess_text"`
	Correct                bool   `json:"correct"`
	AttemptsRemainingAfter int    `json:"attempts_remaining_after"`
}

type historyResponse struct {
	SessionID string                `json:"session_id"`
	Topic     string                `json:"topic"`
	Entries   []historyEntryPayload `json:"entries"`
	Guesses   []historyGuessPayload `json:"guesses"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := historyResponse{
		SessionID: history.SessionID,
		Topic:     history.Topic,
		Entries:   make([]historyEntryPayload, 0, len(history.Entries)),
		Guesses:   make([]historyGuessPayload, 0, len(history.Guesses)),
	}
	for _, entry := range history.Entries {
		resp.Entries = append(resp.Entries, historyEntryPayload{
			Turn:             entry.Turn,
			ParticipantID:    entry.ParticipantID,
			ParticipantName:  entry.ParticipantName,
			VisibleText:      entry.VisibleText,
			PrivateReasoning: entry.PrivateReasoning,
		})
	}
	for _, guess := range history.Guesses {
		resp.Guesses = append(resp.Guesses, historyGuessPayload{
			Turn:                   guess.Turn,
			ParticipantID:          guess.ParticipantID,
			GuessText:              guess.GuessText,
			Correct:                guess.Correct,
			AttemptsRemainingAfter: guess.AttemptsRemainingAfter,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionSummaryPayload struct {
	SessionID    string    `json:"session_id"`
	Topic        string    `json:"topic"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.svc.ListSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	payload := make([]sessionSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, sessionSummaryPayload{
			SessionID:    summary.SessionID,
			Topic:        summary.Topic,
			Participants: summary.Participants,
			CreatedAt:    summary.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": payload})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toParticipantPayloads(roster []domain.Participant) []participantPayload {
	payload := make([]participantPayload, 0, len(roster))
	for _, p := range roster {
		payload = append(payload, participantPayload{
			ID:            p.ID,
			DisplayName:   p.DisplayName,
			Role:          string(p.Role),
			Provider:      p.Provider,
			SpeakingOrder: p.SpeakingOrder,
		})
	}
	return payload
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorResponse{"error": {Code: code, Message: message}})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var sessionErr *session.Error
	if !errors.As(err, &sessionErr) {
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	writeError(w, httpStatus(sessionErr.Code), string(sessionErr.Code), sessionErr.Message)
}

func httpStatus(code session.Code) int {
	switch code {
	case session.CodeSessionNotFound:
		return http.StatusNotFound
	case session.CodeInvalidRoster, session.CodeInvalidRequest:
		return http.StatusBadRequest
	case session.CodeSessionFinished, session.CodeRoundInFlight:
		return http.StatusConflict
	case session.CodeRoundFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
