package main

import (
	"fmt"
	"strings"
)

const (
	maxQueryLen = 500
	maxResults  = 100
)

// ValidationError rejects malformed parameters at the boundary with a
// machine-readable reason next to the human message.
type ValidationError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validateSearch(query string, k int) *ValidationError {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{
			Reason:  "empty_query",
			Message: "query must not be empty",
		}
	}
	if len(query) > maxQueryLen {
		return &ValidationError{
			Reason:  "query_too_long",
			Message: fmt.Sprintf("query must be at most %d characters", maxQueryLen),
		}
	}
	if k < 1 || k > maxResults {
		return &ValidationError{
			Reason:  "k_out_of_range",
			Message: fmt.Sprintf("k must be between 1 and %d", maxResults),
		}
	}

	return nil
}
