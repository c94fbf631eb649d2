package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/engine"
)

type runRulesRequest struct {
	Pass string `json:"pass"`
}

type testRuleRequest struct {
	Limit int `json:"limit"`
	Range int `json:"range"`
}

type testTriggersRequest struct {
	UserID   string           `json:"userId"`
	Strict   bool             `json:"strict"`
	Triggers []triggerPayload `json:"triggers"`
	Limit    int              `json:"limit"`
	Range    int              `json:"range"`
}

type triggerPayload struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type triggerJobRequest struct {
	AccountIDs []string `json:"accountIds"`
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
}

type journalSummary struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
}

type matchResponse struct {
	Matches []journalSummary `json:"matches"`
	Count   int              `json:"count"`
}

type passResponse struct {
	JournalID      uuid.UUID     `json:"journalId"`
	RulesEvaluated int           `json:"rulesEvaluated"`
	RulesMatched   int           `json:"rulesMatched"`
	ActionsApplied int           `json:"actionsApplied"`
	ShortCircuited bool          `json:"shortCircuited"`
	Deleted        bool          `json:"deleted"`
	Outcomes       []ruleOutcome `json:"outcomes"`
}

type ruleOutcome struct {
	RuleID         uuid.UUID `json:"ruleId"`
	GroupID        uuid.UUID `json:"groupId"`
	Title          string    `json:"title"`
	Matched        bool      `json:"matched"`
	ActionsApplied int       `json:"actionsApplied"`
	Error          string    `json:"error,omitempty"`
}

type jobResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	Scanned   int       `json:"scanned"`
	Matched   int       `json:"matched"`
	Applied   int       `json:"applied"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newJournalSummaries(journals []*domain.TransactionJournal) []journalSummary {
	summaries := make([]journalSummary, 0, len(journals))
	for _, j := range journals {
		summaries = append(summaries, journalSummary{
			ID:          j.ID,
			Description: j.Description,
			Date:        j.Date,
			Amount:      j.Amount.String(),
			Currency:    j.CurrencyCode,
		})
	}
	return summaries
}

func newPassResponse(summary *engine.PassSummary) passResponse {
	outcomes := make([]ruleOutcome, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		outcomes = append(outcomes, ruleOutcome{
			RuleID:         o.RuleID,
			GroupID:        o.GroupID,
			Title:          o.Title,
			Matched:        o.Matched,
			ActionsApplied: o.ActionsApplied,
			Error:          o.Error,
		})
	}
	return passResponse{
		JournalID:      summary.JournalID,
		RulesEvaluated: summary.RulesEvaluated,
		RulesMatched:   summary.RulesMatched,
		ActionsApplied: summary.ActionsApplied,
		ShortCircuited: summary.ShortCircuited,
		Deleted:        summary.Deleted,
		Outcomes:       outcomes,
	}
}

func newJobResponse(job *domain.RuleJob) jobResponse {
	return jobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Scanned:   job.Scanned,
		Matched:   job.Matched,
		Applied:   job.Applied,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}
