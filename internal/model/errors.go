package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindQuery      ErrorKind = "query"
	KindAuth       ErrorKind = "auth"
	KindNotFound   ErrorKind = "not_found"
	KindRateLimit  ErrorKind = "rate_limit"
	KindTimeout    ErrorKind = "timeout"
	KindValidation ErrorKind = "validation"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

// Retriable reports whether a failure of this kind may succeed on another attempt
func (k ErrorKind) Retriable() bool {
	switch k {
	case KindConnection, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// ErrorRecord is a failure captured as data in the pipeline state
type ErrorRecord struct {
	Stage     string    `json:"stage"`
	EntityID  string    `json:"entity_id,omitempty"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retriable bool      `json:"retriable"`
}

// DataSourceError is returned by StatisticsSource and DetailSource implementations
type DataSourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

// NewDataSourceError wraps err with a source name and kind
func NewDataSourceError(source string, kind ErrorKind, err error) *DataSourceError {
	return &DataSourceError{Source: source, Kind: kind, Err: err}
}

func (e *DataSourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Source, e.Kind, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the call may be attempted again
func (e *DataSourceError) Retriable() bool {
	return e.Kind.Retriable()
}

// ValidationError marks malformed or degenerate input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// KindOf classifies any error returned inside the pipeline
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var dsErr *DataSourceError
	if errors.As(err, &dsErr) {
		return dsErr.Kind
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindValidation
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}

	return KindInternal
}

// IsRetriable reports whether err belongs to a transient kind
func IsRetriable(err error) bool {
	return KindOf(err).Retriable()
}

// NewErrorRecord converts err into an ErrorRecord for the given stage
func NewErrorRecord(stage, entityID string, err error) ErrorRecord {
	kind := KindOf(err)
	return ErrorRecord{
		Stage:     stage,
		EntityID:  entityID,
		Kind:      kind,
		Message:   err.Error(),
		Retriable: kind.Retriable(),
	}
}
