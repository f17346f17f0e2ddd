// Package apperr defines the coded errors returned across the messaging core.
package apperr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type AppError struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Cause   error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Unauthenticated(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string, details map[string]string) error {
	return &AppError{Code: CodePermissionDenied, Message: msg, Details: details}
}

func Persistence(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

func Timeout(msg string) error {
	return New(CodeDeadlineExceeded, msg)
}

func Exhausted(msg string) error {
	return New(CodeResourceExhausted, msg)
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// DetailsOf returns the details attached to err, if any.
func DetailsOf(err error) map[string]string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}

// Kind maps err onto the error kind a client sees for a failed send.
// Anything else that is not a busy connection is reported as a
// persistence error.
func Kind(err error) string {
	switch CodeOf(err) {
	case "":
		return ""
	case CodeInvalidArgument, CodeNotFound:
		return KindValidation
	case CodePermissionDenied:
		return KindPermissionDenied
	case CodeDeadlineExceeded:
		return KindTimeout
	case CodeResourceExhausted:
		return KindBusy
	default:
		return KindPersistence
	}
}

// GRPCStatus converts err into a gRPC status error.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var c codes.Code
	switch CodeOf(err) {
	case CodeInvalidArgument:
		c = codes.InvalidArgument
	case CodeNotFound:
		c = codes.NotFound
	case CodePermissionDenied:
		c = codes.PermissionDenied
	case CodeUnauthenticated:
		c = codes.Unauthenticated
	case CodeDeadlineExceeded:
		c = codes.DeadlineExceeded
	case CodeResourceExhausted:
		c = codes.ResourceExhausted
	default:
		c = codes.Internal
	}
	return status.Error(c, err.Error())
}
