package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Caller-facing write errors
	ErrEmptyMessage       = fmt.Errorf("message has no content and no attachment")
	ErrContentTooLong     = fmt.Errorf("message content is too long")
	ErrInvalidDestination = fmt.Errorf("message needs exactly one of channel or recipient")
	ErrInvalidAttachment  = fmt.Errorf("invalid attachment descriptor")
	ErrAttachmentTooLarge = fmt.Errorf("attachment is too large")
	ErrInvalidEmoji       = fmt.Errorf("invalid emoji")
	ErrInvalidStatus      = fmt.Errorf("invalid presence status")
	ErrInvalidChannel     = fmt.Errorf("invalid channel")
	ErrInvalidProfile     = fmt.Errorf("invalid profile")
	ErrPersistenceFailed  = fmt.Errorf("persistence failed")
	ErrNotFound           = fmt.Errorf("not found")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")

	// Fan-out internals, never surfaced to a user
	ErrDeliveryFailed       = fmt.Errorf("delivery failed")
	ErrConnectionClosed     = fmt.Errorf("connection closed")
	ErrDuplicateConnection  = fmt.Errorf("connection already registered")
	ErrAnonymousConnection  = fmt.Errorf("connection has no user identity")
	ErrAssistantUnavailable = fmt.Errorf("assistant unavailable")
)

// MapToHTTPStatus translates a domain error into the status code written by the HTTP API.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrInvalidAttachment),
		errors.Is(err, ErrInvalidEmoji),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidChannel),
		errors.Is(err, ErrInvalidProfile):
		return http.StatusBadRequest
	case errors.Is(err, ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch MapToHTTPStatus(err) {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return status.Error(codes.InvalidArgument, err.Error())
	case http.StatusUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case http.StatusForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case http.StatusTooManyRequests:
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// Is and As mirror the standard library so callers importing this package need no alias.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// Persistence wraps a storage failure, leaving ErrNotFound untouched so it keeps its meaning.
func Persistence(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistenceFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
}
