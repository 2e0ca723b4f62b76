package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	"go.uber.org/zap"
)

// Config controls who receives stage notifications
type Config struct {
	// ReceiveIDType is how approver user IDs map to messenger receivers (open_id, user_id, email)
	ReceiveIDType string

	// OperatorChatID receives stalled-stage and halted-chain alerts; empty disables them
	OperatorChatID string
}

// StageNotifier tells approvers when a stage waits for them and alerts operators about stalls
type StageNotifier struct {
	sender port.MessageSender
	cfg    Config
	logger *zap.Logger
}

// NewStageNotifier creates a new stage notifier
func NewStageNotifier(sender port.MessageSender, cfg Config, logger *zap.Logger) *StageNotifier {
	if cfg.ReceiveIDType == "" {
		cfg.ReceiveIDType = "user_id"
	}
	return &StageNotifier{
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// Register subscribes the notifier to the events it handles.
// Messages are sent off the dispatching goroutine, so an engine call returns
// once its transaction commits and a cancelled request does not drop them.
func (n *StageNotifier) Register(d dispatcher.Dispatcher) {
	d.SubscribeAsync(event.TypeStageOpened, "notify-approvers", n.HandleStageOpened)
	d.SubscribeAsync(event.TypeStageStalled, "notify-operator-stalled", n.HandleStageStalled)
	d.SubscribeAsync(event.TypeChainHalted, "notify-operator-halted", n.HandleChainHalted)
}

// HandleStageOpened messages every eligible approver of the new stage.
// Every approver is attempted even when some sends fail.
func (n *StageNotifier) HandleStageOpened(ctx context.Context, evt *event.Event) error {
	approvers := evt.GetPayloadStrings(event.KeyApprovers)
	if len(approvers) == 0 {
		return nil
	}

	text := fmt.Sprintf("Transfer %s is waiting for your approval: stage %d of %d (%s).",
		evt.SubjectID,
		evt.GetPayloadInt(event.KeyStagePosition),
		evt.GetPayloadInt(event.KeyStageCount),
		evt.GetPayloadString(event.KeyRequiredRole),
	)

	var errs []error
	for _, user := range approvers {
		if err := n.sender.SendText(ctx, n.cfg.ReceiveIDType, user, text); err != nil {
			n.logger.Error("Failed to notify approver",
				zap.String("subject_id", evt.SubjectID),
				zap.Int64("instance_id", evt.InstanceID),
				zap.String("user_id", user),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("notify %s: %w", user, err))
		}
	}

	n.logger.Info("Approvers notified",
		zap.String("subject_id", evt.SubjectID),
		zap.Int64("instance_id", evt.InstanceID),
		zap.Int("approvers", len(approvers)),
		zap.Int("failed", len(errs)))

	return errors.Join(errs...)
}

// HandleStageStalled alerts the operator chat that a stage has nobody to decide it
func (n *StageNotifier) HandleStageStalled(ctx context.Context, evt *event.Event) error {
	text := fmt.Sprintf("Transfer %s is stalled: stage %d requires role %s but group %s has no members with it.",
		evt.SubjectID,
		evt.GetPayloadInt(event.KeyStagePosition),
		evt.GetPayloadString(event.KeyRequiredRole),
		evt.GetPayloadString(event.KeyGroupID),
	)
	return n.alertOperator(ctx, evt, text)
}

// HandleChainHalted alerts the operator chat that a chain was rejected
func (n *StageNotifier) HandleChainHalted(ctx context.Context, evt *event.Event) error {
	text := fmt.Sprintf("Transfer %s was rejected in workflow #%d; no further workflows will run.",
		evt.SubjectID,
		evt.GetPayloadInt(event.KeyExecutionOrder),
	)
	return n.alertOperator(ctx, evt, text)
}

func (n *StageNotifier) alertOperator(ctx context.Context, evt *event.Event, text string) error {
	if strings.TrimSpace(n.cfg.OperatorChatID) == "" {
		return nil
	}

	if err := n.sender.SendText(ctx, "chat_id", n.cfg.OperatorChatID, text); err != nil {
		n.logger.Error("Failed to alert operator",
			zap.String("event_type", evt.Type.String()),
			zap.String("subject_id", evt.SubjectID),
			zap.Error(err))
		return fmt.Errorf("failed to alert operator: %w", err)
	}
	return nil
}
