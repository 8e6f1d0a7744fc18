// Package errors provides the watcher's error taxonomy.
// Every failure that crosses a component boundary is an *AppError carrying a Code,
// so the tick loop can decide between "no result this tick" and a real fault.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies an AppError.
type Code int

const (
	CodeUnknown Code = iota
	// CodeCaptureUnavailable: every backend failed this tick. Transient.
	CodeCaptureUnavailable
	// CodeDetectionMiss: no dialogue region in the frame. Expected.
	CodeDetectionMiss
	// CodeOCRGarbage: text rejected by the quality filter.
	CodeOCRGarbage
	// CodeBackendFault: one capture backend's native call failed or panicked.
	CodeBackendFault
	CodeOCRFailed
	CodeOCRUnavailable
	CodeConfigInvalid
	CodeUnsupported
	CodeCancelled
)

var codeNames = map[Code]string{
	CodeUnknown:            "UNKNOWN",
	CodeCaptureUnavailable: "CAPTURE_UNAVAILABLE",
	CodeDetectionMiss:      "DETECTION_MISS",
	CodeOCRGarbage:         "OCR_GARBAGE",
	CodeBackendFault:       "BACKEND_FAULT",
	CodeOCRFailed:          "OCR_FAILED",
	CodeOCRUnavailable:     "OCR_UNAVAILABLE",
	CodeConfigInvalid:      "CONFIG_INVALID",
	CodeUnsupported:        "UNSUPPORTED",
	CodeCancelled:          "CANCELLED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether an OCR call that failed with err is worth retrying.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeOCRUnavailable:
		return true
	default:
		return false
	}
}

// FromGRPCError converts an error returned by the OCR service into an AppError.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeOCRFailed, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes onto the OCR subset of the taxonomy.
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return CodeOCRUnavailable
	case codes.Canceled:
		return CodeCancelled
	case codes.Unimplemented:
		return CodeUnsupported
	default:
		return CodeOCRFailed
	}
}
