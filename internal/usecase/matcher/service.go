package matcher

import (
	"context"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/evaluator"
)

const defaultPageSize = 50

// RescanCeiling is the limit and range used when a scan must cover a
// user's whole history (the "rescan" case). It runs outside the
// interactive path, so the ceiling is set high enough to be effectively
// unbounded.
const RescanCeiling = 100000

// Service is the read-only variant of the rule executor: it scans a
// user's transaction history in bounded pages and returns the journals a
// rule (or an ad-hoc trigger list) would match, without mutating
// anything. Used for interactive previews and rescans.
type Service struct {
	journals domain.JournalRepository
	triggers evaluator.TriggerEvaluator
	pageSize int
}

// NewService creates a new transaction matcher. pageSize bounds how many
// journals are fetched per repository call; values below 1 fall back to
// the default.
func NewService(journals domain.JournalRepository, triggers evaluator.TriggerEvaluator, pageSize int) *Service {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return &Service{
		journals: journals,
		triggers: triggers,
		pageSize: pageSize,
	}
}

// MatchRule scans the owner's history for journals the rule matches
func (s *Service) MatchRule(ctx context.Context, userID uuid.UUID, rule *domain.Rule, limit, scanRange int) ([]*domain.TransactionJournal, error) {
	return s.MatchTriggers(ctx, userID, rule.Triggers, rule.Strict, limit, scanRange)
}

// MatchTriggers scans the user's history for journals matched by an
// ad-hoc ordered trigger list under the given composition mode.
//
// At most limit matches are returned and at most scanRange candidates are
// scanned, whichever bound is hit first; the result may therefore be
// smaller than limit even when more matches exist beyond the scan
// ceiling. A limit or range of zero returns no matches without scanning.
// Candidates are visited newest-first in a stable order, one page at a
// time, so large histories are never held in memory at once. Any
// evaluation error aborts the scan: partial preview results are not
// meaningful.
func (s *Service) MatchTriggers(ctx context.Context, userID uuid.UUID, triggers []domain.RuleTrigger, strict bool, limit, scanRange int) ([]*domain.TransactionJournal, error) {
	matches := make([]*domain.TransactionJournal, 0)
	if limit <= 0 || scanRange <= 0 {
		return matches, nil
	}

	probe := &domain.Rule{Strict: strict, Triggers: triggers}

	scanned := 0
	offset := 0
	for scanned < scanRange && len(matches) < limit {
		fetch := s.pageSize
		if remaining := scanRange - scanned; remaining < fetch {
			fetch = remaining
		}

		page, err := s.journals.ListPage(ctx, userID, domain.JournalFilter{}, fetch, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, j := range page {
			scanned++
			result, err := evaluator.EvaluateRule(s.triggers, probe, domain.NewMatchContext(j))
			if err != nil {
				return nil, err
			}
			if result.Verdict == evaluator.VerdictMatched {
				matches = append(matches, j)
				if len(matches) >= limit {
					break
				}
			}
			if scanned >= scanRange {
				break
			}
		}

		if len(page) < fetch {
			break
		}
		offset += len(page)
	}

	return matches, nil
}

// Rescan scans the user's whole history for matches of the rule, with
// both bounds raised to the rescan ceiling
func (s *Service) Rescan(ctx context.Context, userID uuid.UUID, rule *domain.Rule) ([]*domain.TransactionJournal, error) {
	return s.MatchRule(ctx, userID, rule, RescanCeiling, RescanCeiling)
}
