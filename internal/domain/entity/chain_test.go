package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func instances(statuses ...string) []*WorkflowInstance {
	out := make([]*WorkflowInstance, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, &WorkflowInstance{ID: int64(i + 1), ExecutionOrder: i + 1, Status: s})
	}
	return out
}

func TestDeriveChainStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     ChainStatus
	}{
		{"empty", nil, ChainStatusNoWorkflow},
		{"first active", []string{StatusActive, StatusPending}, ChainStatusInProgress},
		{"second active", []string{StatusApproved, StatusActive}, ChainStatusInProgress},
		{"all approved", []string{StatusApproved, StatusApproved}, ChainStatusCompleted},
		{"rejected keeps pending tail", []string{StatusApproved, StatusRejected, StatusPending}, ChainStatusHalted},
		{"rejected cancels tail", []string{StatusRejected, StatusCancelled}, ChainStatusHalted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveChainStatus(instances(tt.statuses...)))
		})
	}
}

func TestChainHandle_Active(t *testing.T) {
	chain := NewChainHandle("T-1", "G", instances(StatusApproved, StatusActive, StatusPending))
	assert.Equal(t, int64(2), chain.Active().ID)
	assert.Equal(t, ChainStatusInProgress, chain.Status)

	done := NewChainHandle("T-2", "G", instances(StatusApproved))
	assert.Nil(t, done.Active())
}

func TestWorkflowInstance_Helpers(t *testing.T) {
	inst := &WorkflowInstance{Status: StatusActive}
	assert.Equal(t, 0, inst.CurrentPosition())
	assert.False(t, inst.IsTerminal())

	pos := 3
	inst.CurrentStagePosition = &pos
	inst.Status = StatusCancelled
	assert.Equal(t, 3, inst.CurrentPosition())
	assert.True(t, inst.IsTerminal())
}

func TestIsValidDecision(t *testing.T) {
	assert.True(t, IsValidDecision(DecisionApproved))
	assert.True(t, IsValidDecision(DecisionRejected))
	assert.False(t, IsValidDecision(DecisionPending))
	assert.False(t, IsValidDecision("approved"))
}
