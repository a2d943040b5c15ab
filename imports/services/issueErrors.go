package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type IssueErrorKind string

const (
	KindRateLimited IssueErrorKind = "rate_limited"
	KindServerError IssueErrorKind = "server_error"
	KindClientError IssueErrorKind = "client_error"
	// KindNetwork covers failures without a usable response: transport errors and undecodable bodies
	KindNetwork IssueErrorKind = "network"
)

// UnknownErrorCode is stored on rows whose failure carried no HTTP status
const UnknownErrorCode = "UNKNOWN"

// IssueError is a classified failure from the boleto issuing API
type IssueError struct {
	Kind       IssueErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *IssueError) Error() string {
	return "OlympiaBank API error: " + e.Message
}

func (e *IssueError) Unwrap() error {
	return e.Err
}

// Retryable is false only for client errors other than 429
func (e *IssueError) Retryable() bool {
	return e.Kind != KindClientError
}

// Code is the HTTP status as text, or UNKNOWN when there was no response
func (e *IssueError) Code() string {
	if e.StatusCode > 0 {
		return strconv.Itoa(e.StatusCode)
	}
	return UnknownErrorCode
}

func classifyStatus(status int) IssueErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500 && status < 600:
		return KindServerError
	default:
		return KindClientError
	}
}

// IsRetryable reports whether a failed issue call may be attempted again.
// Errors that never reached the API are retryable.
func IsRetryable(err error) bool {
	var issueErr *IssueError
	if errors.As(err, &issueErr) {
		return issueErr.Retryable()
	}
	return true
}

// ErrorCode returns the code persisted on an errored row
func ErrorCode(err error) string {
	var issueErr *IssueError
	if errors.As(err, &issueErr) {
		return issueErr.Code()
	}
	return UnknownErrorCode
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func newNetworkError(err error) *IssueError {
	return &IssueError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

func newStatusError(status int, message string, retryAfter time.Duration) *IssueError {
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return &IssueError{
		Kind:       classifyStatus(status),
		StatusCode: status,
		RetryAfter: retryAfter,
		Message:    message,
	}
}
