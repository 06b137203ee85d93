// Package drivererr defines the error-kind taxonomy shared across the
// driver core, along with the user-facing record shape (title, message,
// recovery suggestion, retryability) that front-ends surface.
package drivererr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so callers can branch without string matching.
type Kind string

const (
	// USB access kinds.
	KindAccessDenied       Kind = "access_denied"
	KindDeviceDisconnected Kind = "device_disconnected"
	KindBusy               Kind = "busy"
	KindTimeout            Kind = "timeout"
	KindPipe               Kind = "pipe"
	KindNotSupported       Kind = "not_supported"
	KindIO                 Kind = "io"

	// Initialization kinds.
	KindInterfaceClaimFailed Kind = "interface_claim_failed"
	KindKernelDetachFailed   Kind = "kernel_detach_failed"
	KindInitStepFailed       Kind = "init_step_failed"
	KindConfigurationError   Kind = "configuration_error"

	// Parse kinds.
	KindInvalidReportSize       Kind = "invalid_report_size"
	KindInvalidReportDescriptor Kind = "invalid_report_descriptor"

	// Profile kinds.
	KindProfileNotFound      Kind = "profile_not_found"
	KindProfileInvalidFormat Kind = "profile_invalid_format"
	KindVersionMismatch      Kind = "version_mismatch"
	KindUnsupportedDevice    Kind = "unsupported_device"

	// Output sink kinds.
	KindPermissionDenied    Kind = "permission_denied"
	KindEventCreationFailed Kind = "event_creation_failed"

	// Config-store kinds.
	KindSchemaMismatch   Kind = "schema_mismatch"
	KindFileNotFound     Kind = "file_not_found"
	KindInvalidJSON      Kind = "invalid_json"
	KindNoConfigurations Kind = "no_configurations"
)

// nonRetryable marks the kinds a caller should not retry automatically.
var nonRetryable = map[Kind]bool{
	KindVersionMismatch:         true,
	KindUnsupportedDevice:       true,
	KindInvalidReportDescriptor: true,
}

// Error is a classified driver error carrying a user-facing recovery hint.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	Index      int // populated for KindInitStepFailed
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Cause implements github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error { return e.cause }

// IsRetryable reports whether a front-end should offer an automatic retry.
func (e *Error) IsRetryable() bool { return !nonRetryable[e.Kind] }

// Title returns a short, human title suitable for a notification heading.
func (e *Error) Title() string {
	switch e.Kind {
	case KindAccessDenied:
		return "Access Denied"
	case KindDeviceDisconnected:
		return "Device Disconnected"
	case KindBusy:
		return "Device Busy"
	case KindTimeout:
		return "Device Timed Out"
	case KindInterfaceClaimFailed:
		return "Could Not Claim Device"
	case KindVersionMismatch:
		return "Unsupported Configuration Version"
	case KindUnsupportedDevice:
		return "Unsupported Device"
	case KindPermissionDenied:
		return "Permission Denied"
	default:
		return "Driver Error"
	}
}

// New builds a classified error with a recovery suggestion.
func New(kind Kind, message, suggestion string) *Error {
	return &Error{Kind: kind, Message: message, Suggestion: suggestion}
}

// Wrap classifies an underlying error, preserving it as the cause.
func Wrap(kind Kind, cause error, message, suggestion string) *Error {
	return &Error{Kind: kind, Message: message, Suggestion: suggestion, cause: errors.WithStack(cause)}
}

// WithIndex returns a copy of e with Index set, for KindInitStepFailed.
func (e *Error) WithIndex(i int) *Error {
	cp := *e
	cp.Index = i
	return &cp
}
