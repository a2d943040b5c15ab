package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrIssuerClosed = errors.New("olympia bank client is closed")

// IssueRequest is what the issuer needs to emit one boleto
type IssueRequest struct {
	Amount   int64 // cents
	Name     string
	Document string
	Phone    string
	Email    string
}

// DocumentResult is the issued boleto as returned by the API
type DocumentResult struct {
	IDTransaction string `json:"idTransaction"`
	BoletoURL     string `json:"boletoUrl"`
	BoletoCode    string `json:"boletoCode"`
	PDF           string `json:"pdf"`
	DueDate       string `json:"dueDate"`
}

type boletoClient struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Telefone string `json:"telefone"`
	Email    string `json:"email"`
}

type boletoUtms struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
}

type boletoProduct struct {
	Name  string `json:"name_product"`
	Value string `json:"valor_product"`
}

type boletoSplit struct {
	User  string `json:"user"`
	Value string `json:"value"`
}

type boletoRequest struct {
	Amount  int64         `json:"amount"`
	Client  boletoClient  `json:"client"`
	Utms    boletoUtms    `json:"utms"`
	Product boletoProduct `json:"product"`
	Split   boletoSplit   `json:"split"`
}

type apiErrorBody struct {
	Message string `json:"message"`
}

type OlympiaBankConfig struct {
	BaseURL     string
	Token       string
	MinInterval time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// OlympiaBankClient issues boletos one call at a time. A single goroutine owns
// the request slot, so concurrent callers queue in FIFO order and two calls
// never start closer than the current minimum interval.
type OlympiaBankClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger

	calls     chan *issueCall
	closed    chan struct{}
	closeOnce sync.Once

	// owned by the run goroutine
	limiter   *rate.Limiter
	lastStart time.Time

	mu          sync.RWMutex
	minInterval time.Duration
}

type issueCall struct {
	ctx    context.Context
	req    IssueRequest
	result chan issueResult
}

type issueResult struct {
	doc *DocumentResult
	err error
}

func NewOlympiaBankClient(cfg OlympiaBankConfig, logger *zap.Logger) *OlympiaBankClient {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &OlympiaBankClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:       cfg.Token,
		httpClient:  httpClient,
		logger:      logger,
		calls:       make(chan *issueCall),
		closed:      make(chan struct{}),
		limiter:     rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		minInterval: cfg.MinInterval,
	}

	go c.run()
	return c
}

// Issue queues one boleto request behind every call already waiting for the slot
func (c *OlympiaBankClient) Issue(ctx context.Context, req IssueRequest) (*DocumentResult, error) {
	call := &issueCall{ctx: ctx, req: req, result: make(chan issueResult, 1)}

	select {
	case c.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrIssuerClosed
	}

	res := <-call.result
	return res.doc, res.err
}

// MinInterval is the spacing currently enforced between outbound calls
func (c *OlympiaBankClient) MinInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minInterval
}

// Close stops the slot goroutine. Calls made afterwards fail with ErrIssuerClosed.
func (c *OlympiaBankClient) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *OlympiaBankClient) run() {
	for {
		select {
		case call := <-c.calls:
			c.serve(call)
		case <-c.closed:
			return
		}
	}
}

func (c *OlympiaBankClient) serve(call *issueCall) {
	if err := c.limiter.Wait(call.ctx); err != nil {
		call.result <- issueResult{err: fmt.Errorf("waiting for issuer slot: %w", err)}
		return
	}
	c.lastStart = time.Now()

	doc, err := c.createBoleto(call.ctx, call.req)

	var issueErr *IssueError
	if errors.As(err, &issueErr) && issueErr.Kind == KindRateLimited && issueErr.RetryAfter > 0 {
		c.setMinInterval(issueErr.RetryAfter)
	}

	call.result <- issueResult{doc: doc, err: err}
}

// setMinInterval swaps in a limiter at the new spacing whose only token was
// spent by the call that just started, so the next call waits the full interval.
func (c *OlympiaBankClient) setMinInterval(interval time.Duration) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.AllowN(c.lastStart, 1)
	c.limiter = limiter

	c.mu.Lock()
	previous := c.minInterval
	c.minInterval = interval
	c.mu.Unlock()

	c.logger.Warn("Issuer rate limited, raising minimum request interval",
		zap.Duration("previous_interval", previous),
		zap.Duration("min_interval", interval),
		zap.String("type", "issuer_throttle_adjusted"),
	)
}

func (c *OlympiaBankClient) createBoleto(ctx context.Context, req IssueRequest) (*DocumentResult, error) {
	payload := boletoRequest{
		Amount: req.Amount,
		Client: boletoClient{
			Name:     req.Name,
			Document: req.Document,
			Telefone: req.Phone,
			Email:    req.Email,
		},
		Utms: boletoUtms{Source: "import", Medium: "batch", Campaign: "bulk"},
		Product: boletoProduct{
			Name:  "Boleto",
			Value: FormatCents(req.Amount),
		},
		Split: boletoSplit{User: "default", Value: "0"},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/boleto/", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("OlympiaBank request failed", zap.Error(err), zap.Duration("duration", time.Since(started)))
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiErrorBody
		_ = json.Unmarshal(body, &apiErr)
		issueErr := newStatusError(resp.StatusCode, apiErr.Message, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))

		c.logger.Warn("OlympiaBank API error",
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(issueErr.Kind)),
			zap.Duration("retry_after", issueErr.RetryAfter),
			zap.String("message", issueErr.Message),
			zap.Duration("duration", time.Since(started)),
		)
		return nil, issueErr
	}

	var doc DocumentResult
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, newNetworkError(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	c.logger.Debug("OlympiaBank boleto issued",
		zap.String("id_transaction", doc.IDTransaction),
		zap.Duration("duration", time.Since(started)),
	)
	return &doc, nil
}

// FormatCents renders an amount in cents as "D.DD"
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
