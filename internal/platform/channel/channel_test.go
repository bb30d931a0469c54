package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPPusher(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"successCount":2,"failureCount":1}`))
	}))
	defer srv.Close()

	p := NewHTTPPusher(srv.URL, "secret", zap.NewNop())
	res, err := p.SendPush(context.Background(), []string{"a", "b", "c"}, Notification{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, PushResult{SuccessCount: 2, FailureCount: 1}, res)
	assert.Equal(t, []string{"a", "b", "c"}, got.Tokens)
	assert.Equal(t, "t", got.Notification.Title)
}

func TestHTTPPusherGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPPusher(srv.URL, "", zap.NewNop())
	res, err := p.SendPush(context.Background(), []string{"a", "b"}, Notification{Title: "t"})
	assert.Error(t, err)
	assert.Equal(t, 2, res.FailureCount)
}

func TestHTTPPusherNoTokens(t *testing.T) {
	p := NewHTTPPusher("http://127.0.0.1:1", "", zap.NewNop())
	res, err := p.SendPush(context.Background(), nil, Notification{})
	require.NoError(t, err)
	assert.Zero(t, res)
}

type recordingPublisher struct {
	queue   string
	message interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, queueName string, message interface{}) error {
	p.queue = queueName
	p.message = message
	return nil
}

func (p *recordingPublisher) Close() {}

func TestQueueMailer(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewQueueMailer(pub, "outbound_email")

	require.NoError(t, m.SendEmail(context.Background(), []string{"x@campus.edu"}, Email{Subject: "s", Body: "b"}))
	assert.Equal(t, "outbound_email", pub.queue)
	job, ok := pub.message.(EmailJob)
	require.True(t, ok)
	assert.Equal(t, []string{"x@campus.edu"}, job.To)
	assert.Equal(t, "s", job.Subject)

	pub.message = nil
	require.NoError(t, m.SendEmail(context.Background(), nil, Email{Subject: "s"}))
	assert.Nil(t, pub.message)
}

func TestGatewayComposesTransports(t *testing.T) {
	g := NewGateway(NewLogPusher(zap.NewNop()), NewLogMailer(zap.NewNop()))
	res, err := g.SendPush(context.Background(), []string{"a"}, Notification{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.NoError(t, g.SendEmail(context.Background(), []string{"a@b.c"}, Email{}))
}
