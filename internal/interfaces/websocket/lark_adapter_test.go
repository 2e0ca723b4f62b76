package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

type recordedDecision struct {
	instanceID int64
	user       entity.UserID
	decision   string
}

type mockRecorder struct {
	calls []recordedDecision
	err   error
}

func (m *mockRecorder) RecordDecision(ctx context.Context, instanceID int64, user entity.UserID, decision string) error {
	m.calls = append(m.calls, recordedDecision{instanceID, user, decision})
	return m.err
}

type mockReplier struct {
	texts []string
}

func (m *mockReplier) SendText(ctx context.Context, receiveIDType, receiveID, text string) error {
	m.texts = append(m.texts, receiveIDType+":"+receiveID+":"+text)
	return nil
}

func TestParseDecisionCommand(t *testing.T) {
	tests := []struct {
		text     string
		id       int64
		decision string
		ok       bool
	}{
		{"approve 42", 42, entity.DecisionApproved, true},
		{"  Reject   #7 ", 7, entity.DecisionRejected, true},
		{"APPROVED 3", 3, entity.DecisionApproved, true},
		{"approve", 0, "", false},
		{"approve abc", 0, "", false},
		{"approve 0", 0, "", false},
		{"maybe 5", 0, "", false},
		{"approve 5 now", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			id, decision, ok := parseDecisionCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.decision, decision)
		})
	}
}

func TestProcessMessage_RecordsDecision(t *testing.T) {
	recorder := &mockRecorder{}
	replier := &mockReplier{}
	a := NewLarkAdapter(LarkAdapterConfig{}, recorder, replier, zap.NewNop())

	err := a.processMessage(context.Background(), "u1", "text", `{"text":"approve 42"}`)

	require.NoError(t, err)
	require.Len(t, recorder.calls, 1)
	assert.Equal(t, recordedDecision{42, "u1", entity.DecisionApproved}, recorder.calls[0])
	require.Len(t, replier.texts, 1)
	assert.Contains(t, replier.texts[0], "user_id:u1:Recorded APPROVED")
}

func TestProcessMessage_EligibilityErrorsAreAnswered(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		reply string
	}{
		{"already decided", engine.ErrAlreadyDecided, "already decided"},
		{"not eligible", engine.ErrNotEligible, "not an approver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replier := &mockReplier{}
			a := NewLarkAdapter(LarkAdapterConfig{}, &mockRecorder{err: tt.err}, replier, zap.NewNop())

			err := a.processMessage(context.Background(), "u1", "text", `{"text":"reject 9"}`)

			require.NoError(t, err)
			require.Len(t, replier.texts, 1)
			assert.Contains(t, replier.texts[0], tt.reply)
		})
	}
}

func TestProcessMessage_StorageErrorIsReturned(t *testing.T) {
	replier := &mockReplier{}
	a := NewLarkAdapter(LarkAdapterConfig{}, &mockRecorder{err: errors.New("locked")}, replier, zap.NewNop())

	err := a.processMessage(context.Background(), "u1", "text", `{"text":"reject 9"}`)

	assert.Error(t, err)
	assert.Len(t, replier.texts, 1)
}

func TestProcessMessage_Ignored(t *testing.T) {
	recorder := &mockRecorder{}
	replier := &mockReplier{}
	a := NewLarkAdapter(LarkAdapterConfig{}, recorder, replier, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, a.processMessage(ctx, "u1", "image", `{"image_key":"x"}`))
	require.NoError(t, a.processMessage(ctx, "", "text", `{"text":"approve 1"}`))
	require.NoError(t, a.processMessage(ctx, "u1", "text", `not json`))

	assert.Empty(t, recorder.calls)
	assert.Empty(t, replier.texts)
}

func TestProcessMessage_UsageHint(t *testing.T) {
	recorder := &mockRecorder{}
	replier := &mockReplier{}
	a := NewLarkAdapter(LarkAdapterConfig{}, recorder, nil, zap.NewNop())

	require.NoError(t, a.processMessage(context.Background(), "u1", "text", `{"text":"hello"}`))
	assert.Empty(t, recorder.calls)

	a.replier = replier
	require.NoError(t, a.processMessage(context.Background(), "u1", "text", `{"text":"hello"}`))
	require.Len(t, replier.texts, 1)
	assert.Contains(t, replier.texts[0], "approve <instance id>")
}

func TestHandleMessageReceive_IncompleteEvent(t *testing.T) {
	recorder := &mockRecorder{}
	a := NewLarkAdapter(LarkAdapterConfig{}, recorder, nil, zap.NewNop())

	assert.NoError(t, a.handleMessageReceive(context.Background(), nil))
	assert.Empty(t, recorder.calls)
}

func TestAdapterLifecycle(t *testing.T) {
	a := NewLarkAdapter(LarkAdapterConfig{AppID: "cli_x", AppSecret: "s"}, &mockRecorder{}, nil, zap.NewNop())

	assert.False(t, a.IsRunning())
	assert.NoError(t, a.Stop())
}
