// Package websocket provides WebSocket adapters for external event sources.
// The Lark adapter turns approver chat replies into engine decisions.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// DecisionRecorder is the engine operation the adapter drives
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, instanceID int64, user entity.UserID, decision string) error
}

// LarkAdapter wraps the Lark WebSocket SDK client and records decisions
// that approvers send to the bot as "approve <instance>" or "reject <instance>".
type LarkAdapter struct {
	appID     string
	appSecret string
	recorder  DecisionRecorder
	replier   port.MessageSender
	logger    *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// LarkAdapterConfig holds configuration for the Lark WebSocket adapter.
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
}

// NewLarkAdapter creates a new Lark WebSocket adapter.
// replier may be nil, in which case outcomes are only logged.
func NewLarkAdapter(cfg LarkAdapterConfig, recorder DecisionRecorder, replier port.MessageSender, logger *zap.Logger) *LarkAdapter {
	return &LarkAdapter{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		recorder:  recorder,
		replier:   replier,
		logger:    logger,
	}
}

// Start initializes the WebSocket connection and begins listening for messages.
// This method blocks until the context is cancelled or an error occurs.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Verification token and encrypt key are not used in WebSocket mode
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(a.handleMessageReceive)

	a.wsClient = larkws.NewClient(
		a.appID,
		a.appSecret,
		larkws.WithEventHandler(sdkDispatcher),
	)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark WebSocket adapter", zap.String("app_id", a.appID))

	if err := a.wsClient.Start(ctx); err != nil {
		a.logger.Error("Lark WebSocket client error", zap.Error(err))
		return fmt.Errorf("websocket client error: %w", err)
	}

	return nil
}

// Stop marks the adapter stopped.
// The SDK client itself exits when the context passed to Start is cancelled.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.started = false
	a.logger.Info("Lark WebSocket adapter stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running.
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

func (a *LarkAdapter) handleMessageReceive(ctx context.Context, evt *larkim.P2MessageReceiveV1) error {
	if evt == nil || evt.Event == nil || evt.Event.Message == nil || evt.Event.Sender == nil || evt.Event.Sender.SenderId == nil {
		a.logger.Debug("Ignoring incomplete message event")
		return nil
	}

	return a.processMessage(ctx,
		deref(evt.Event.Sender.SenderId.UserId),
		deref(evt.Event.Message.MessageType),
		deref(evt.Event.Message.Content),
	)
}

// processMessage parses a text message and records the decision it carries.
// Parse failures and eligibility errors are answered, not returned.
func (a *LarkAdapter) processMessage(ctx context.Context, userID, msgType, content string) error {
	if msgType != larkim.MsgTypeText || userID == "" {
		return nil
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		a.logger.Warn("Failed to parse message content", zap.Error(err), zap.String("user_id", userID))
		return nil
	}

	instanceID, decision, ok := parseDecisionCommand(body.Text)
	if !ok {
		a.reply(ctx, userID, "Reply with \"approve <instance id>\" or \"reject <instance id>\".")
		return nil
	}

	err := a.recorder.RecordDecision(ctx, instanceID, entity.UserID(userID), decision)
	switch {
	case err == nil:
		a.logger.Info("Decision received over Lark",
			zap.Int64("instance_id", instanceID),
			zap.String("user_id", userID),
			zap.String("decision", decision))
		a.reply(ctx, userID, fmt.Sprintf("Recorded %s for workflow instance %d.", decision, instanceID))
		return nil
	case errors.Is(err, engine.ErrAlreadyDecided):
		a.reply(ctx, userID, fmt.Sprintf("The current stage of workflow instance %d was already decided.", instanceID))
		return nil
	case errors.Is(err, engine.ErrNotEligible):
		a.reply(ctx, userID, fmt.Sprintf("You are not an approver of the current stage of workflow instance %d.", instanceID))
		return nil
	default:
		a.logger.Error("Failed to record decision from Lark",
			zap.Error(err),
			zap.Int64("instance_id", instanceID),
			zap.String("user_id", userID))
		a.reply(ctx, userID, fmt.Sprintf("Your decision for workflow instance %d could not be recorded. Please try again.", instanceID))
		return fmt.Errorf("failed to record decision: %w", err)
	}
}

func (a *LarkAdapter) reply(ctx context.Context, userID, text string) {
	if a.replier == nil {
		return
	}
	if err := a.replier.SendText(ctx, "user_id", userID, text); err != nil {
		a.logger.Warn("Failed to reply to approver", zap.Error(err), zap.String("user_id", userID))
	}
}

// parseDecisionCommand accepts "approve 42" or "reject 42", case-insensitive
func parseDecisionCommand(text string) (int64, string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return 0, "", false
	}

	var decision string
	switch strings.ToLower(fields[0]) {
	case "approve", "approved":
		decision = entity.DecisionApproved
	case "reject", "rejected":
		decision = entity.DecisionRejected
	default:
		return 0, "", false
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, decision, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
