package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published and consumed by attest.
const (
	SubjectTranscriptStored  = "attest.transcript.stored"
	SubjectAnalysisCompleted = "attest.analysis.completed"
	SubjectAnalysisFailed    = "attest.analysis.failed"
)

// TranscriptStored asks attest to analyze a stored transcript. TemplateID
// and Strategy are optional; an empty strategy means the recommender picks.
type TranscriptStored struct {
	TranscriptID string `json:"transcript_id"`
	TemplateID   string `json:"template_id,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
}

// AnalysisCompleted announces a finished run.
type AnalysisCompleted struct {
	AnalysisID   string `json:"analysis_id"`
	TranscriptID string `json:"transcript_id"`
	TemplateID   string `json:"template_id"`
	Strategy     string `json:"strategy"`
	DurationMs   int64  `json:"duration_ms"`
}

// AnalysisFailed announces a run that could not complete.
type AnalysisFailed struct {
	AnalysisID   string `json:"analysis_id"`
	TranscriptID string `json:"transcript_id"`
	Error        string `json:"error"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
