package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/transfer-approval/internal/config"
	infraLark "github.com/garyjia/transfer-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/transfer-approval/pkg/utils"
	"go.uber.org/zap"
)

// Sends one Lark IM text message with the configured credentials so the
// notification path can be checked without starting the service.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")
	receiveID := flag.String("to", "", "receiver ID (defaults to the operator chat)")
	receiveIDType := flag.String("type", "", "receiver ID type: user_id, open_id, union_id, email or chat_id")
	text := flag.String("text", "Transfer approval notification test", "message text")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Lark.AppID == "" || cfg.Lark.AppSecret == "" {
		fmt.Fprintln(os.Stderr, "lark.app_id and lark.app_secret must be set")
		os.Exit(1)
	}

	to, idType := *receiveID, *receiveIDType
	if to == "" {
		to, idType = cfg.Lark.OperatorChatID, "chat_id"
	}
	if idType == "" {
		idType = cfg.Lark.ReceiveIDType
	}
	if to == "" {
		fmt.Fprintln(os.Stderr, "no receiver: pass -to or set lark.operator_chat_id")
		os.Exit(1)
	}

	logger, err := utils.NewDevelopmentLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:      cfg.Lark.AppID,
		AppSecret:  cfg.Lark.AppSecret,
		BaseURL:    cfg.Lark.BaseURL,
		APITimeout: cfg.Lark.APITimeout,
	}, logger)
	messenger := infraLark.NewMessenger(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := fmt.Sprintf("%s (%s)", *text, time.Now().Format(time.RFC3339))
	if err := messenger.SendText(ctx, idType, to, msg); err != nil {
		logger.Error("Test message failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("Test message sent",
		zap.String("receive_id_type", idType),
		zap.String("receive_id", to))
}
