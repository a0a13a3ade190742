package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrder(t *testing.T) {
	assert.Greater(t, StatusRejected.Severity(), StatusPending.Severity())
	assert.Greater(t, StatusPending.Severity(), StatusPassed.Severity())
}

func TestParseDecision(t *testing.T) {
	s, err := ParseDecision(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, s)

	s, err = ParseDecision(2)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, s)

	for _, bad := range []int{0, 3, -1} {
		_, err := ParseDecision(bad)
		assert.ErrorIs(t, err, ErrInvalidStatus, "status %d", bad)
	}
}

func TestLedgerTransitions(t *testing.T) {
	e := &LedgerEntry{Status: StatusPending}
	assert.NoError(t, e.CanTransitionTo(StatusPassed, false))
	assert.NoError(t, e.CanTransitionTo(StatusPending, false))

	e.Status = StatusRejected
	assert.ErrorIs(t, e.CanTransitionTo(StatusPassed, false), ErrInvalidTransition)
	assert.NoError(t, e.CanTransitionTo(StatusPassed, true))
	assert.ErrorIs(t, e.CanTransitionTo(StatusPending, true), ErrInvalidTransition)
	assert.ErrorIs(t, e.CanTransitionTo(AuditStatus(7), true), ErrInvalidStatus)
}

func TestAuditRequestValidate(t *testing.T) {
	ok := AuditRequest{TaskID: "audit_1_1_x", EntityKind: KindBook, EntityID: 1}
	assert.NoError(t, ok.Validate())

	noTask := ok
	noTask.TaskID = ""
	assert.ErrorIs(t, noTask.Validate(), ErrInvalidRequest)

	badKind := ok
	badKind.EntityKind = "comment"
	assert.ErrorIs(t, badKind.Validate(), ErrInvalidRequest)
}

func TestFailureResultEchoesTask(t *testing.T) {
	req := AuditRequest{TaskID: "t-42", EntityKind: KindChapter, EntityID: 42, BookID: 7}
	res := FailureResult(req, assert.AnError)
	assert.Equal(t, "t-42", res.TaskID)
	assert.Equal(t, int64(42), res.EntityID)
	assert.False(t, res.Success)
	require.NotNil(t, res.ErrorMessage)
	assert.Equal(t, assert.AnError.Error(), *res.ErrorMessage)
}

func TestNewTaskID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewTaskID(PurposeFor(KindChapter), 42, now)
	assert.Regexp(t, `^chapter_audit_42_1700000000123_[0-9a-f]{8}$`, id)
	assert.NotEqual(t, id, NewTaskID(PurposeFor(KindChapter), 42, now))
	assert.True(t, strings.HasPrefix(NewTaskID(PurposeFor(KindBook), 7, now), "book_audit_7_"))
}
