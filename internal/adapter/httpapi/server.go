package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/engine"
)

const dateLayout = "2006-01-02"

// RuleRunner runs the active rules of a user against one journal.
type RuleRunner interface {
	RunOnCreate(ctx context.Context, j *domain.TransactionJournal) (*engine.PassSummary, error)
	RunOnUpdate(ctx context.Context, j *domain.TransactionJournal) (*engine.PassSummary, error)
}

// Matcher finds stored journals a rule's triggers would match.
type Matcher interface {
	MatchRule(ctx context.Context, userID uuid.UUID, rule *domain.Rule, limit, scanRange int) ([]*domain.TransactionJournal, error)
	MatchTriggers(ctx context.Context, userID uuid.UUID, triggers []domain.RuleTrigger, strict bool, limit, scanRange int) ([]*domain.TransactionJournal, error)
}

// JobService enqueues retroactive rule jobs and reports their status.
type JobService interface {
	EnqueueRule(ctx context.Context, userID, ruleID uuid.UUID, accountIDs []uuid.UUID, start, end time.Time) (*domain.RuleJob, error)
	EnqueueGroup(ctx context.Context, userID, groupID uuid.UUID, accountIDs []uuid.UUID, start, end time.Time) (*domain.RuleJob, error)
	Job(ctx context.Context, id uuid.UUID) (*domain.RuleJob, error)
}

// Pinger reports backing store health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes the rule engine over HTTP.
type Server struct {
	db       Pinger
	rules    domain.RuleRepository
	journals domain.JournalRepository
	engine   RuleRunner
	matcher  Matcher
	jobs     JobService
	logger   *slog.Logger
	router   *chi.Mux
}

// NewServer wires the rule engine services into a chi router.
func NewServer(
	db Pinger,
	rules domain.RuleRepository,
	journals domain.JournalRepository,
	ruleRunner RuleRunner,
	matcher Matcher,
	jobs JobService,
	apiToken string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:       db,
		rules:    rules,
		journals: journals,
		engine:   ruleRunner,
		matcher:  matcher,
		jobs:     jobs,
		logger:   logger,
	}
	s.setupRoutes(apiToken)
	return s
}

func (s *Server) setupRoutes(apiToken string) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(apiToken))

		r.Post("/api/v1/journals/{journalID}/rules/run", s.handleRunRules)
		r.Post("/api/v1/rules/test", s.handleTestTriggers)
		r.Post("/api/v1/rules/{ruleID}/test", s.handleTestRule)
		r.Post("/api/v1/rules/{ruleID}/trigger", s.handleTriggerRule)
		r.Post("/api/v1/rule-groups/{groupID}/trigger", s.handleTriggerGroup)
		r.Get("/api/v1/jobs/{jobID}", s.handleGetJob)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleRunRules runs a user's active rules against one stored journal.
// The pass defaults to on-update; on-create is meant for ingestion hooks.
func (s *Server) handleRunRules(w http.ResponseWriter, r *http.Request) {
	journalID, err := uuid.Parse(chi.URLParam(r, "journalID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid journal id", err)
		return
	}

	req := runRulesRequest{Pass: string(domain.PassOnUpdate)}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	journal, err := s.journals.GetByID(r.Context(), journalID)
	if err != nil {
		s.respondServiceError(w, "failed to load journal", err)
		return
	}

	var summary *engine.PassSummary
	switch domain.PassType(req.Pass) {
	case domain.PassOnCreate:
		summary, err = s.engine.RunOnCreate(r.Context(), journal)
	case domain.PassOnUpdate:
		summary, err = s.engine.RunOnUpdate(r.Context(), journal)
	default:
		respondError(w, http.StatusBadRequest, "pass must be on-create or on-update", nil)
		return
	}
	if err != nil {
		s.respondServiceError(w, "rule pass failed", err)
		return
	}

	respondJSON(w, http.StatusOK, newPassResponse(summary))
}

// handleTestRule previews which stored journals a rule would match,
// without applying any actions.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	var req testRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.rules.GetRule(r.Context(), ruleID)
	if err != nil {
		s.respondServiceError(w, "failed to load rule", err)
		return
	}
	group, err := s.rules.GetGroup(r.Context(), rule.GroupID)
	if err != nil {
		s.respondServiceError(w, "failed to load rule group", err)
		return
	}

	matches, err := s.matcher.MatchRule(r.Context(), group.UserID, rule, req.Limit, req.Range)
	if err != nil {
		s.respondServiceError(w, "match scan failed", err)
		return
	}

	respondJSON(w, http.StatusOK, matchResponse{
		Matches: newJournalSummaries(matches),
		Count:   len(matches),
	})
}

// handleTestTriggers previews matches for an ad-hoc trigger list that is
// not stored as a rule.
func (s *Server) handleTestTriggers(w http.ResponseWriter, r *http.Request) {
	var req testTriggersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id", err)
		return
	}
	if len(req.Triggers) == 0 {
		respondError(w, http.StatusBadRequest, "at least one trigger is required", nil)
		return
	}

	triggers := make([]domain.RuleTrigger, 0, len(req.Triggers))
	for i, t := range req.Triggers {
		triggers = append(triggers, domain.RuleTrigger{
			ID:    uuid.New(),
			Kind:  domain.TriggerKind(t.Kind),
			Value: t.Value,
			Order: i + 1,
		})
	}

	matches, err := s.matcher.MatchTriggers(r.Context(), userID, triggers, req.Strict, req.Limit, req.Range)
	if err != nil {
		s.respondServiceError(w, "match scan failed", err)
		return
	}

	respondJSON(w, http.StatusOK, matchResponse{
		Matches: newJournalSummaries(matches),
		Count:   len(matches),
	})
}

// handleTriggerRule enqueues a retroactive run of one rule over stored
// journals. The work happens asynchronously; the response carries the
// job id to poll.
func (s *Server) handleTriggerRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	accountIDs, start, end, ok := s.decodeTriggerJob(w, r)
	if !ok {
		return
	}

	rule, err := s.rules.GetRule(r.Context(), ruleID)
	if err != nil {
		s.respondServiceError(w, "failed to load rule", err)
		return
	}
	group, err := s.rules.GetGroup(r.Context(), rule.GroupID)
	if err != nil {
		s.respondServiceError(w, "failed to load rule group", err)
		return
	}

	job, err := s.jobs.EnqueueRule(r.Context(), group.UserID, ruleID, accountIDs, start, end)
	if err != nil {
		s.respondServiceError(w, "failed to enqueue job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, newJobResponse(job))
}

// handleTriggerGroup enqueues a retroactive run of a whole rule group.
func (s *Server) handleTriggerGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid group id", err)
		return
	}

	accountIDs, start, end, ok := s.decodeTriggerJob(w, r)
	if !ok {
		return
	}

	group, err := s.rules.GetGroup(r.Context(), groupID)
	if err != nil {
		s.respondServiceError(w, "failed to load rule group", err)
		return
	}

	job, err := s.jobs.EnqueueGroup(r.Context(), group.UserID, groupID, accountIDs, start, end)
	if err != nil {
		s.respondServiceError(w, "failed to enqueue job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, newJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id", err)
		return
	}

	job, err := s.jobs.Job(r.Context(), jobID)
	if err != nil {
		s.respondServiceError(w, "failed to load job", err)
		return
	}

	respondJSON(w, http.StatusOK, newJobResponse(job))
}

func (s *Server) decodeTriggerJob(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, time.Time, time.Time, bool) {
	var req triggerJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return nil, time.Time{}, time.Time{}, false
	}

	accountIDs := make([]uuid.UUID, 0, len(req.AccountIDs))
	for _, raw := range req.AccountIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid account id", err)
			return nil, time.Time{}, time.Time{}, false
		}
		accountIDs = append(accountIDs, id)
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD", err)
		return nil, time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "endDate must be YYYY-MM-DD", err)
		return nil, time.Time{}, time.Time{}, false
	}

	return accountIDs, start, end, true
}

// respondServiceError maps service errors to HTTP status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, message string, err error) {
	var invalidValue *domain.InvalidValueError
	var unknownTrigger *domain.UnknownTriggerError
	var unknownAction *domain.UnknownActionError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.As(err, &invalidValue), errors.As(err, &unknownTrigger), errors.As(err, &unknownAction):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		s.logger.Error(message, "error", err)
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
