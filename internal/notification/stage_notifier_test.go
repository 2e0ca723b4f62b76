package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	receiveIDType string
	receiveID     string
	text          string
}

type mockSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	sendFunc func(receiveID string) error
}

func (m *mockSender) SendText(ctx context.Context, receiveIDType, receiveID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{receiveIDType, receiveID, text})
	if m.sendFunc != nil {
		return m.sendFunc(receiveID)
	}
	return nil
}

func stageOpened(approvers ...string) *event.Event {
	return event.NewEvent(event.TypeStageOpened, "T-100", 7, map[string]interface{}{
		event.KeyStagePosition: 2,
		event.KeyStageCount:    3,
		event.KeyRequiredRole:  "FINANCE_MANAGER",
		event.KeyGroupID:       "G",
		event.KeyApprovers:     approvers,
	})
}

func TestStageNotifier_NotifiesEveryApprover(t *testing.T) {
	sender := &mockSender{}
	n := NewStageNotifier(sender, Config{ReceiveIDType: "open_id"}, zap.NewNop())

	require.NoError(t, n.HandleStageOpened(context.Background(), stageOpened("ou_a", "ou_b")))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "open_id", sender.sent[0].receiveIDType)
	assert.Equal(t, "ou_a", sender.sent[0].receiveID)
	assert.Equal(t, "ou_b", sender.sent[1].receiveID)
	assert.Contains(t, sender.sent[0].text, "T-100")
	assert.Contains(t, sender.sent[0].text, "stage 2 of 3")
}

func TestStageNotifier_ContinuesAfterFailedSend(t *testing.T) {
	boom := errors.New("rate limited")
	sender := &mockSender{sendFunc: func(id string) error {
		if id == "ou_a" {
			return boom
		}
		return nil
	}}
	n := NewStageNotifier(sender, Config{}, zap.NewNop())

	err := n.HandleStageOpened(context.Background(), stageOpened("ou_a", "ou_b"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, "user_id", sender.sent[1].receiveIDType)
}

func TestStageNotifier_StalledStageWithoutOperatorChat(t *testing.T) {
	sender := &mockSender{}
	n := NewStageNotifier(sender, Config{}, zap.NewNop())

	stalled := stageOpened()
	stalled.Type = event.TypeStageStalled

	require.NoError(t, n.HandleStageOpened(context.Background(), stageOpened()))
	require.NoError(t, n.HandleStageStalled(context.Background(), stalled))
	assert.Empty(t, sender.sent)
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func TestStageNotifier_RegisteredAlerts(t *testing.T) {
	sender := &mockSender{}
	n := NewStageNotifier(sender, Config{OperatorChatID: "oc_ops"}, zap.NewNop())

	d := dispatcher.NewDispatcher()
	n.Register(d)

	stalled := event.NewEvent(event.TypeStageStalled, "T-100", 7, map[string]interface{}{
		event.KeyStagePosition: 1,
		event.KeyRequiredRole:  "CFO",
		event.KeyGroupID:       "G",
	})
	halted := event.NewEvent(event.TypeChainHalted, "T-100", 7, map[string]interface{}{
		event.KeyExecutionOrder: 2,
	})

	require.NoError(t, d.Dispatch(context.Background(), stalled))
	require.NoError(t, d.Dispatch(context.Background(), halted))
	require.NoError(t, d.Close())

	sent := sender.messages()
	require.Len(t, sent, 2)
	texts := make([]string, 0, len(sent))
	for _, msg := range sent {
		assert.Equal(t, "chat_id", msg.receiveIDType)
		assert.Equal(t, "oc_ops", msg.receiveID)
		texts = append(texts, msg.text)
	}
	assert.Condition(t, func() bool {
		return containsText(texts, "role CFO") && containsText(texts, "workflow #2")
	}, "texts: %v", texts)
}

func TestStageNotifier_SendsAfterDispatchReturns(t *testing.T) {
	release := make(chan struct{})
	sender := &mockSender{sendFunc: func(string) error {
		<-release
		return nil
	}}
	n := NewStageNotifier(sender, Config{}, zap.NewNop())

	d := dispatcher.NewDispatcher()
	n.Register(d)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Dispatch(ctx, stageOpened("u1", "u2")))
	cancel()

	close(release)
	require.NoError(t, d.Close())

	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "u1", sent[0].receiveID)
	assert.Equal(t, "u2", sent[1].receiveID)
}

func containsText(texts []string, sub string) bool {
	for _, text := range texts {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}
