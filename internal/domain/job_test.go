package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validJob() *RuleJob {
	ruleID := uuid.New()
	return &RuleJob{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		RuleID:    &ruleID,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:    JobStatusPending,
	}
}

func TestRuleJobValidate_Valid(t *testing.T) {
	assert.NoError(t, validJob().Validate())
}

func TestRuleJobValidate_RequiresExactlyOneTarget(t *testing.T) {
	job := validJob()
	job.RuleID = nil
	assert.Error(t, job.Validate())

	groupID := uuid.New()
	job.GroupID = &groupID
	assert.NoError(t, job.Validate())

	ruleID := uuid.New()
	job.RuleID = &ruleID
	assert.Error(t, job.Validate())
}

func TestRuleJobValidate_RequiresDateWindow(t *testing.T) {
	job := validJob()
	job.EndDate = time.Time{}
	assert.Error(t, job.Validate())

	job = validJob()
	job.EndDate = job.StartDate.AddDate(0, 0, -1)
	assert.Error(t, job.Validate())

	job = validJob()
	job.EndDate = job.StartDate
	assert.NoError(t, job.Validate())
}
