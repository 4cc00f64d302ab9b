// Package errs defines the error taxonomy shared by the evaluation harness.
//
// Every failure the harness reports is a gokit *AppError whose Code is one
// of the Kinds below. Callers match kinds anywhere in the chain with Is:
//
//	if errs.Is(err, errs.KindSchema) { ... }
package errs

import (
	"errors"
	"fmt"

	apperrors "github.com/kbukum/gokit/errors"
)

// Kind classifies a harness failure.
type Kind = apperrors.ErrorCode

const (
	KindConfiguration Kind = "CONFIGURATION"
	KindSchema        Kind = "SCHEMA"
	KindAudio         Kind = "AUDIO"
	KindDispatch      Kind = "DISPATCH"
	KindTimeout       Kind = apperrors.ErrCodeTimeout
)

func newf(kind Kind, cause error, format string, args ...any) *apperrors.AppError {
	e := apperrors.New(kind, fmt.Sprintf(format, args...), 0)
	if cause != nil {
		e.WithCause(cause)
	}
	return e
}

// Configuration reports an unknown corpus, model id, provider or a bad setting.
func Configuration(format string, args ...any) *apperrors.AppError {
	return newf(KindConfiguration, nil, format, args...)
}

// Schema reports a required column missing after the column mapping.
func Schema(format string, args ...any) *apperrors.AppError {
	return newf(KindSchema, nil, format, args...)
}

// Audio reports undecodable audio or audio outside a backend's bounds.
func Audio(cause error, format string, args ...any) *apperrors.AppError {
	return newf(KindAudio, cause, format, args...)
}

// Dispatch reports a failed backend invocation.
func Dispatch(cause error, format string, args ...any) *apperrors.AppError {
	return newf(KindDispatch, cause, format, args...)
}

// Timeout reports an expired per-sample deadline.
func Timeout(cause error, format string, args ...any) *apperrors.AppError {
	return newf(KindTimeout, cause, format, args...)
}

// KindOf returns the Code of the first *AppError in err's chain, or "".
func KindOf(err error) Kind {
	if e, ok := apperrors.AsAppError(err); ok {
		return e.Code
	}
	return ""
}

// Is reports whether any *AppError in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		e, ok := apperrors.AsAppError(err)
		if !ok {
			return false
		}
		if e.Code == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// SampleError tags a sample-level failure with its corpus and position.
type SampleError struct {
	Corpus string
	Index  int
	Err    error
}

func (e *SampleError) Error() string {
	if e.Corpus == "" {
		return fmt.Sprintf("sample %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("corpus %s: sample %d: %v", e.Corpus, e.Index, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// IsSample reports whether err carries a *SampleError.
func IsSample(err error) bool {
	var se *SampleError
	return errors.As(err, &se)
}
