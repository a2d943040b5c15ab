package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// scriptedIssuer returns the queued responses in order and succeeds once they run out
type scriptedIssuer struct {
	mu        sync.Mutex
	responses []error
	calls     []IssueRequest
	failFor   map[int64]error // permanent error by amount
}

func newScriptedIssuer(responses ...error) *scriptedIssuer {
	return &scriptedIssuer{responses: responses, failFor: make(map[int64]error)}
}

func (s *scriptedIssuer) Issue(ctx context.Context, req IssueRequest) (*DocumentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if err, ok := s.failFor[req.Amount]; ok {
		return nil, err
	}
	if len(s.responses) > 0 {
		err := s.responses[0]
		s.responses = s.responses[1:]
		if err != nil {
			return nil, err
		}
	}
	n := len(s.calls)
	return &DocumentResult{
		IDTransaction: fmt.Sprintf("tx-%d", n),
		BoletoURL:     fmt.Sprintf("https://boletos.test/%d", n),
		BoletoCode:    "23790000",
		DueDate:       "2024-12-31",
	}, nil
}

func (s *scriptedIssuer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func statusErr(status int) error {
	return newStatusError(status, "", 0)
}

// noSleep records backoff delays without waiting
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays = append(n.delays, d)
	return ctx.Err()
}
