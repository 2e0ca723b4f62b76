package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/transfer-approval/internal/application/port"
)

// messageCreator is the slice of the IM API the messenger needs
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.MessageSender over the Lark IM API
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return newMessenger(sdk.GetClient().Im.Message, logger)
}

func newMessenger(messages messageCreator, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: messages,
		logger:   logger,
	}
}

// SendText sends a plain-text message.
// receiveIDType is one of open_id, user_id, union_id, email or chat_id.
func (m *Messenger) SendText(ctx context.Context, receiveIDType, receiveID, text string) error {
	if receiveID == "" {
		return fmt.Errorf("receiveID cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiveID))

	return nil
}

// Verify interface compliance
var _ port.MessageSender = (*Messenger)(nil)
