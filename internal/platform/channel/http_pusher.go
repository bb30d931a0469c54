package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type pushRequest struct {
	Tokens       []string     `json:"tokens"`
	Notification Notification `json:"notification"`
}

// HTTPPusher envoie un multicast à une passerelle push HTTP.
type HTTPPusher struct {
	client *resty.Client
	logger *zap.Logger
}

func NewHTTPPusher(baseURL, token string, logger *zap.Logger) *HTTPPusher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPPusher{client: client, logger: logger}
}

func (p *HTTPPusher) SendPush(ctx context.Context, tokens []string, n Notification) (PushResult, error) {
	if len(tokens) == 0 {
		return PushResult{}, nil
	}

	var result PushResult
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(pushRequest{Tokens: tokens, Notification: n}).
		SetResult(&result).
		Post("/send")
	if err != nil {
		return PushResult{FailureCount: len(tokens)}, fmt.Errorf("failed to call push gateway: %w", err)
	}
	if resp.IsError() {
		p.logger.Warn("push gateway returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("title", n.Title),
		)
		return PushResult{FailureCount: len(tokens)}, fmt.Errorf("push gateway error: status %d", resp.StatusCode())
	}
	return result, nil
}
