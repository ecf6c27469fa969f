package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is returned when the download service is missing or disabled
	ErrBackendUnavailable = errors.New("download service unavailable")

	// ErrTransferNotFound is returned when a backend does not know a handle
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrInvalidRequest is returned for incomplete transfer requests
	ErrInvalidRequest = errors.New("invalid transfer request")

	// ErrPollerExhausted is returned when a poller is run a second time
	ErrPollerExhausted = errors.New("poller already used")

	// ErrTargetNotFound is returned for a download target that was never started
	ErrTargetNotFound = errors.New("download target not found")
)

// ErrorKind is the closed taxonomy of failures reported to listeners
type ErrorKind string

const (
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindEnqueueFailed      ErrorKind = "enqueue_failed"
	KindTransferFailed     ErrorKind = "transfer_failed"
	KindVerificationFailed ErrorKind = "verification_failed"
	KindInstallFailed      ErrorKind = "install_failed"
)

// DownloadError is the error delivered through Listener.OnFailed
type DownloadError struct {
	Kind   ErrorKind
	Reason FailureReason // set for KindTransferFailed
	Err    error
}

func (e *DownloadError) Error() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "storage permission denied"
	case KindServiceUnavailable:
		return "service unavailable"
	case KindEnqueueFailed:
		return "file not found"
	case KindTransferFailed:
		return fmt.Sprintf("transfer failed: %s", reasonText(e.Reason))
	case KindVerificationFailed:
		return "downloaded file could not be found"
	case KindInstallFailed:
		return "install failed, open manually"
	default:
		return string(e.Kind)
	}
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates an error of the given kind
func NewDownloadError(kind ErrorKind, err error) *DownloadError {
	return &DownloadError{Kind: kind, Err: err}
}

// NewTransferError creates a TransferFailed error for a backend reason
func NewTransferError(reason FailureReason, detail string) *DownloadError {
	var err error
	if detail != "" {
		err = errors.New(detail)
	}
	return &DownloadError{Kind: KindTransferFailed, Reason: reason, Err: err}
}

// IsKind reports whether err is a DownloadError of kind
func IsKind(err error, kind ErrorKind) bool {
	var de *DownloadError
	return errors.As(err, &de) && de.Kind == kind
}

func reasonText(r FailureReason) string {
	switch r {
	case FailureFileError:
		return "file error"
	case FailureHTTPError:
		return "http error"
	case FailureInsufficientSpace:
		return "insufficient space"
	case FailureTooManyRedirects:
		return "too many redirects"
	case FailureCannotResume:
		return "cannot resume"
	case FailureAlreadyExists:
		return "file already exists"
	default:
		return "unknown error"
	}
}
