// Package errors provides unified error handling with a closed set of error codes.
// Codes map onto gRPC status codes so the same error surfaces over HTTP, gRPC and logs.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code identifies an error category.
type Code int32

const (
	Unknown Code = iota
	Internal
	InvalidArgument
	NotFound
	Unavailable
	Timeout
	Cancelled
	ConfigInvalid
	ConfigMissing
	CaptureFailed
	OCRResolutionFailed
	OCRLaunchFailed
	OCRTimeout
	OCREngineExit
	OCRMalformedResponse
	OCREngineReported
	OCREnginePaused
)

var codeNames = map[Code]string{
	Unknown:              "UNKNOWN",
	Internal:             "INTERNAL",
	InvalidArgument:      "INVALID_ARGUMENT",
	NotFound:             "NOT_FOUND",
	Unavailable:          "UNAVAILABLE",
	Timeout:              "TIMEOUT",
	Cancelled:            "CANCELLED",
	ConfigInvalid:        "CONFIG_INVALID",
	ConfigMissing:        "CONFIG_MISSING",
	CaptureFailed:        "CAPTURE_FAILED",
	OCRResolutionFailed:  "OCR_RESOLUTION_FAILED",
	OCRLaunchFailed:      "OCR_LAUNCH_FAILED",
	OCRTimeout:           "OCR_TIMEOUT",
	OCREngineExit:        "OCR_ENGINE_EXIT",
	OCRMalformedResponse: "OCR_MALFORMED_RESPONSE",
	OCREngineReported:    "OCR_ENGINE_REPORTED",
	OCREnginePaused:      "OCR_ENGINE_PAUSED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// ParseCode is the inverse of String; unknown names map to Unknown.
func ParseCode(s string) Code {
	for c, name := range codeNames {
		if name == s {
			return c
		}
	}
	return Unknown
}

// MarshalText lets codes appear by name in JSON.
func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:              codes.Unknown,
	Internal:             codes.Internal,
	InvalidArgument:      codes.InvalidArgument,
	NotFound:             codes.NotFound,
	Unavailable:          codes.Unavailable,
	Timeout:              codes.DeadlineExceeded,
	Cancelled:            codes.Canceled,
	ConfigInvalid:        codes.InvalidArgument,
	ConfigMissing:        codes.FailedPrecondition,
	CaptureFailed:        codes.Unavailable,
	OCRResolutionFailed:  codes.FailedPrecondition,
	OCRLaunchFailed:      codes.Unavailable,
	OCRTimeout:           codes.DeadlineExceeded,
	OCREngineExit:        codes.Internal,
	OCRMalformedResponse: codes.Internal,
	OCREngineReported:    codes.Internal,
	OCREnginePaused:      codes.Unavailable,
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

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// Detail converts the error to a protobuf Struct carried in gRPC status details.
func (e *AppError) Detail() *structpb.Struct {
	meta := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = v
	}
	s, err := structpb.NewStruct(map[string]any{
		"code":     e.Code.String(),
		"message":  e.Message,
		"metadata": meta,
	})
	if err != nil {
		return &structpb.Struct{}
	}
	return s
}

// GRPCStatus returns a gRPC status with the detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.Detail()); err == nil {
		return withDetail
	}
	return st
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

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.AsMap()
		name, _ := fields["code"].(string)
		msg, _ := fields["message"].(string)
		appErr := &AppError{Code: ParseCode(name), Message: msg}
		if meta, ok := fields["metadata"].(map[string]any); ok {
			for k, v := range meta {
				if sv, ok := v.(string); ok {
					appErr.WithMetadata(k, sv)
				}
			}
		}
		return appErr
	}

	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message()}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return ConfigMissing
	default:
		return Unknown
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, Unknown otherwise.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, CaptureFailed:
		return true
	default:
		return false
	}
}
