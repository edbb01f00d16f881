// Package marathonerr defines the closed error taxonomy every asynchronous
// entry point in the control plane settles with. A Kind never changes
// meaning across packages: callers type-switch or errors.Is against the
// sentinels below rather than inspecting message text.
package marathonerr

import (
	"errors"
	"fmt"
)

// Kind identifies which row of the table an error belongs to.
type Kind string

const (
	ValidationFailure           Kind = "ValidationFailure"
	Conflict                    Kind = "Conflict"
	AppLocked                   Kind = "AppLocked"
	DeploymentCancelled         Kind = "DeploymentCancelled"
	DeploymentFailed            Kind = "DeploymentFailed"
	Orphaned                    Kind = "Orphaned"
	MatchError                  Kind = "MatchError"
	PluginInitializationFailure Kind = "PluginInitializationFailure"
	ScanError                   Kind = "ScanError"
	CompactError                Kind = "CompactError"
)

// Error wraps a cause with the Kind the control plane settled on.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, marathonerr.ErrAppLocked) style checks match any
// *Error of the same Kind, including the sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsDeploymentFailed maps any unrecognized error to DeploymentFailed,
// wrapping the original cause for the deployment executor. An error that
// is already a *Error keeps its Kind.
func AsDeploymentFailed(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(DeploymentFailed, "unrecognized failure", err)
}

// Sentinel values for errors.Is comparisons where callers don't need a
// custom message.
var (
	ErrValidationFailure           = New(ValidationFailure, "validation failed")
	ErrConflict                    = New(Conflict, "id conflict")
	ErrAppLocked                   = New(AppLocked, "run-spec locked by another deployment")
	ErrDeploymentCancelled         = New(DeploymentCancelled, "deployment cancelled")
	ErrDeploymentFailed            = New(DeploymentFailed, "deployment failed")
	ErrMatchError                  = New(MatchError, "malformed instance id")
	ErrPluginInitializationFailure = New(PluginInitializationFailure, "plugin initialization failed")
)
