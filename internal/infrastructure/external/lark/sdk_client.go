package lark

import (
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// SDKClient wraps the Lark SDK client
type SDKClient struct {
	client *lark.Client
	appID  string
	logger *zap.Logger
}

// Config holds Lark client configuration
type Config struct {
	AppID      string
	AppSecret  string
	BaseURL    string // empty selects the Feishu open platform
	APITimeout time.Duration
}

// NewSDKClient creates a new Lark SDK client
func NewSDKClient(cfg Config, logger *zap.Logger) *SDKClient {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.APITimeout))
	}

	return &SDKClient{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		appID:  cfg.AppID,
		logger: logger,
	}
}

// GetClient returns the underlying Lark SDK client
func (c *SDKClient) GetClient() *lark.Client {
	return c.client
}

// GetAppID returns the app ID
func (c *SDKClient) GetAppID() string {
	return c.appID
}
