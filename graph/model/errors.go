package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies a failed LLM call.
type FailureKind string

const (
	FailureTransient   FailureKind = "transient"
	FailureRateLimited FailureKind = "rate_limited"
	FailureAuth        FailureKind = "auth"
	FailureCanceled    FailureKind = "canceled"
	FailureOther       FailureKind = "other"
)

// StatusError is returned by provider adapters when the API answered with an
// HTTP error status.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Classify maps an error from ChatModel.Chat to a FailureKind.
//
// Typed errors are checked first; SDK errors that reach us untyped are
// classified by message.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return FailureAuth
		case se.StatusCode == 429:
			return FailureRateLimited
		case se.StatusCode == 408 || se.StatusCode >= 500:
			return FailureTransient
		default:
			return FailureOther
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "api key", "api_key", "unauthorized", "permission denied"):
		return FailureAuth
	case containsAny(msg, "429", "rate limit", "rate_limit", "quota", "resource exhausted", "too many requests"):
		return FailureRateLimited
	case containsAny(msg, "timeout", "timed out", "connection reset", "connection refused", "temporarily", "unavailable", "overloaded", "500", "502", "503", "504"):
		return FailureTransient
	}
	return FailureOther
}

// Retryable reports whether err is worth another attempt. It is meant to be
// used as graph.RetryPolicy.Retryable for LLM calls.
func Retryable(err error) bool {
	switch Classify(err) {
	case FailureTransient, FailureRateLimited:
		return true
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
