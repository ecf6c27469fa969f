package domain

import "context"

// PermissionStorage is the permission required to write downloaded files
const PermissionStorage = "storage"

// TransferBackend is the boundary to the download service that performs
// the actual transfer. Backend-specific codes never cross this interface.
type TransferBackend interface {
	// IsServiceEnabled reports whether the download service can accept work
	IsServiceEnabled() bool

	// Enqueue submits a request. It returns ErrBackendUnavailable when the
	// service is disabled and HandleEnqueueFailed when the request is rejected.
	Enqueue(ctx context.Context, req TransferRequest) (TransferHandle, error)

	// Remove cancels a transfer and discards its data. Unknown handles are ignored.
	Remove(ctx context.Context, handle TransferHandle) error

	// Query returns the current status of a transfer
	Query(ctx context.Context, handle TransferHandle) (TransferStatus, error)
}

// CompletionBroadcaster is implemented by backends that announce finished
// transfers. Backends without it are observed through polling only.
type CompletionBroadcaster interface {
	// RegisterReceiver subscribes fn to completion events until unregister is called
	RegisterReceiver(fn func(CompletionEvent)) (unregister func())
}

// PermissionGate answers whether the process may write downloaded files
type PermissionGate interface {
	IsGranted(permission string) bool

	// Request asks for permissions and reports the outcome through callback
	Request(permissions []string, callback func(granted bool))
}

// Installer hands a finished file to the platform installer
type Installer interface {
	Install(uri, mimeType string) bool
}

// Listener receives the outcome of a coordinator attempt. These four calls
// are the whole contract a UI layer implements.
type Listener interface {
	OnPrepared(req TransferRequest)
	OnProgress(totalBytes, bytesSoFar int64, percent int)
	OnSuccess(uri, mimeType string)
	OnFailed(err error)
}

// Messenger shows user-facing messages owned by the UI layer
type Messenger interface {
	ShowMessage(title, message string)

	// OfferSettings tells the user how to re-enable the download service
	OfferSettings(message string)

	// OfferFallback opens url in a generic viewer
	OfferFallback(url string)
}
