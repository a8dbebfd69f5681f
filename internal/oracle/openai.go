package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ppiankov/sitaware/internal/metrics"
	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/session"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4"

// defaultTimeout bounds a single round trip.
const defaultTimeout = 60 * time.Second

// Config holds the connection settings of an OpenAI-compatible endpoint.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float32
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Option customizes an OpenAI client.
type Option func(*OpenAI)

// WithTrimmer sets the outgoing-view trimmer.
func WithTrimmer(t session.Trimmer) Option {
	return func(o *OpenAI) { o.trimmer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *OpenAI) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records exchange latency and transport errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *OpenAI) { o.metrics = m }
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAI) { o.httpClient = c }
}

// OpenAI talks to a chat-completions endpoint.
type OpenAI struct {
	cfg        Config
	client     *openai.Client
	httpClient *http.Client
	limiter    *rate.Limiter
	trimmer    session.Trimmer
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewOpenAI creates a client. An API key is required unless BaseURL points
// at a self-hosted endpoint that does not check one.
func NewOpenAI(cfg Config, opts ...Option) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, &model.ConfigError{Field: "oracle.api_key", Err: errors.New("required when oracle.base_url is not set")}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	o := &OpenAI{
		cfg:     cfg,
		trimmer: session.KeepAll{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if o.httpClient != nil {
		clientCfg.HTTPClient = o.httpClient
	}
	o.client = openai.NewClientWithConfig(clientCfg)

	if cfg.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return o, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.cfg.Model }

// Complete sends text as the next user turn and returns the reply.
func (o *OpenAI) Complete(ctx context.Context, sc *session.Context, text string) (string, error) {
	reply, err := exchange(ctx, sc, text, o.trimmer, o.send)
	if err == nil {
		o.metrics.ContextTurns(sc.Len())
	}
	return reply, err
}

func (o *OpenAI) send(ctx context.Context, turns []model.Turn) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", o.fail(classify("throttle", err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Text})
	}
	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		o.metrics.Exchange(false, elapsed)
		return "", o.fail(classify("chat completion", err))
	}
	if len(resp.Choices) == 0 {
		o.metrics.Exchange(false, elapsed)
		return "", o.fail(&TransportError{Op: "chat completion", Kind: KindEmpty, Err: fmt.Errorf("response has no choices")})
	}
	o.metrics.Exchange(true, elapsed)

	reply := resp.Choices[0].Message.Content
	o.logger.Debug("oracle exchange",
		zap.String("model", o.cfg.Model),
		zap.Int("turns_sent", len(turns)),
		zap.Int("reply_bytes", len(reply)),
		zap.Duration("elapsed", elapsed),
	)
	return reply, nil
}

func (o *OpenAI) fail(te *TransportError) *TransportError {
	o.metrics.TransportError(string(te.Kind))
	o.logger.Warn("oracle exchange failed",
		zap.String("op", te.Op),
		zap.String("kind", string(te.Kind)),
		zap.Int("status", te.StatusCode),
		zap.Error(te.Err),
	)
	return te
}
