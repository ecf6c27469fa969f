package domain

import (
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
)

// NetworkType is a bit set of networks a transfer may use
type NetworkType uint8

const (
	NetworkWifi   NetworkType = 1 << iota // Unmetered network
	NetworkMobile                         // Metered network

	NetworkAny = NetworkWifi | NetworkMobile
)

// Allows reports whether n permits transfers on network
func (n NetworkType) Allows(network NetworkType) bool {
	return n&network != 0
}

// String returns a readable form of the network set
func (n NetworkType) String() string {
	switch n {
	case NetworkWifi:
		return "wifi"
	case NetworkMobile:
		return "mobile"
	case NetworkAny:
		return "wifi,mobile"
	default:
		return "none"
	}
}

// ParseNetworkType parses "wifi", "mobile" or "any"
func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wifi":
		return NetworkWifi, nil
	case "mobile":
		return NetworkMobile, nil
	case "any", "", "wifi,mobile":
		return NetworkAny, nil
	default:
		return 0, fmt.Errorf("unknown network type: %s", s)
	}
}

// NotificationVisibility controls the system notification shown for a transfer
type NotificationVisibility string

const (
	VisibilityVisible                NotificationVisibility = "visible"
	VisibilityVisibleNotifyCompleted NotificationVisibility = "visible_notify_completed"
	VisibilityNotifyOnlyCompletion   NotificationVisibility = "notify_only_completion"
	VisibilityHidden                 NotificationVisibility = "hidden"
)

// NotifiesCompletion reports whether a notification is due when the transfer ends
func (v NotificationVisibility) NotifiesCompletion() bool {
	return v == VisibilityVisibleNotifyCompleted || v == VisibilityNotifyOnlyCompletion
}

// MimeTypeAPK is the media type of an Android package
const MimeTypeAPK = "application/vnd.android.package-archive"

var extraMimeTypes = map[string]string{
	".apk":  MimeTypeAPK,
	".xapk": MimeTypeAPK,
	".deb":  "application/vnd.debian.binary-package",
	".rpm":  "application/x-rpm",
	".dmg":  "application/x-apple-diskimage",
	".msi":  "application/x-msi",
}

// GuessMimeType infers a media type from the file extension
func GuessMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t, ok := extraMimeTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

// TransferRequest describes one attempt to fetch a resource to a local path.
// It is a value type: build a fresh one per attempt and do not mutate it.
type TransferRequest struct {
	SourceURL              string                 `json:"source_url"`
	DestinationPath        string                 `json:"destination_path"`
	VersionKey             string                 `json:"version_key"`
	DisplayTitle           string                 `json:"display_title"`
	AllowedNetworks        NetworkType            `json:"allowed_networks"`
	NotificationVisibility NotificationVisibility `json:"notification_visibility"`
	MimeType               string                 `json:"mime_type"`
}

// NewTransferRequest creates a request with defaults for the optional fields
func NewTransferRequest(sourceURL, destinationPath, versionKey string) TransferRequest {
	return TransferRequest{
		SourceURL:              sourceURL,
		DestinationPath:        destinationPath,
		VersionKey:             versionKey,
		DisplayTitle:           filepath.Base(destinationPath),
		AllowedNetworks:        NetworkAny,
		NotificationVisibility: VisibilityVisibleNotifyCompleted,
		MimeType:               GuessMimeType(destinationPath),
	}
}

// Validate checks the request is complete enough to enqueue
func (r TransferRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return fmt.Errorf("%w: source url is required", ErrInvalidRequest)
	}
	if _, err := url.Parse(r.SourceURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(r.DestinationPath) == "" {
		return fmt.Errorf("%w: destination path is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.VersionKey) == "" {
		return fmt.Errorf("%w: version key is required", ErrInvalidRequest)
	}
	if r.AllowedNetworks == 0 {
		return fmt.Errorf("%w: no network allowed", ErrInvalidRequest)
	}
	return nil
}

// TransferHandle identifies a transfer inside a TransferBackend
type TransferHandle int64

const (
	// HandleNone means no transfer is active
	HandleNone TransferHandle = 0
	// HandleEnqueueFailed is returned by a backend that rejected the request
	HandleEnqueueFailed TransferHandle = -1
)

// Valid reports whether the handle refers to an enqueued transfer
func (h TransferHandle) Valid() bool {
	return h > HandleNone
}

// StatusKind discriminates TransferStatus variants
type StatusKind string

const (
	StatusPending   StatusKind = "pending"
	StatusRunning   StatusKind = "running"
	StatusPaused    StatusKind = "paused"
	StatusSucceeded StatusKind = "succeeded"
	StatusFailed    StatusKind = "failed"
)

// PauseReason explains why a transfer is paused
type PauseReason string

const (
	PauseWaitingToRetry    PauseReason = "waiting_to_retry"
	PauseWaitingForNetwork PauseReason = "waiting_for_network"
	PauseQueuedForWifi     PauseReason = "queued_for_wifi"
	PauseUnknown           PauseReason = "unknown"
)

// FailureReason is the closed set of terminal transfer failures
type FailureReason string

const (
	FailureFileError         FailureReason = "file_error"
	FailureHTTPError         FailureReason = "http_error"
	FailureInsufficientSpace FailureReason = "insufficient_space"
	FailureTooManyRedirects  FailureReason = "too_many_redirects"
	FailureCannotResume      FailureReason = "cannot_resume"
	FailureAlreadyExists     FailureReason = "already_exists"
	FailureUnknown           FailureReason = "unknown"
)

// TransferStatus is a tagged variant; only the fields of Kind are meaningful.
//
//	Running:   BytesSoFar, TotalBytes
//	Paused:    PauseReason
//	Succeeded: ResultURI, MimeType
//	Failed:    FailureReason, Detail
type TransferStatus struct {
	Kind          StatusKind    `json:"kind"`
	BytesSoFar    int64         `json:"bytes_so_far,omitempty"`
	TotalBytes    int64         `json:"total_bytes,omitempty"`
	PauseReason   PauseReason   `json:"pause_reason,omitempty"`
	ResultURI     string        `json:"result_uri,omitempty"`
	MimeType      string        `json:"mime_type,omitempty"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Detail        string        `json:"detail,omitempty"`
}

func Pending() TransferStatus {
	return TransferStatus{Kind: StatusPending}
}

func Running(bytesSoFar, totalBytes int64) TransferStatus {
	return TransferStatus{Kind: StatusRunning, BytesSoFar: bytesSoFar, TotalBytes: totalBytes}
}

func Paused(reason PauseReason) TransferStatus {
	return TransferStatus{Kind: StatusPaused, PauseReason: reason}
}

func Succeeded(resultURI, mimeType string) TransferStatus {
	return TransferStatus{Kind: StatusSucceeded, ResultURI: resultURI, MimeType: mimeType}
}

func Failed(reason FailureReason, detail string) TransferStatus {
	return TransferStatus{Kind: StatusFailed, FailureReason: reason, Detail: detail}
}

// IsTerminal reports whether no further events follow this status
func (s TransferStatus) IsTerminal() bool {
	return s.Kind == StatusSucceeded || s.Kind == StatusFailed
}

// Percent returns completion in the range 0-100, 0 when the total is unknown
func (s TransferStatus) Percent() int {
	if s.TotalBytes <= 0 {
		return 0
	}
	p := int(s.BytesSoFar * 100 / s.TotalBytes)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func (s TransferStatus) String() string {
	switch s.Kind {
	case StatusRunning:
		return fmt.Sprintf("running(%d/%d)", s.BytesSoFar, s.TotalBytes)
	case StatusPaused:
		return fmt.Sprintf("paused(%s)", s.PauseReason)
	case StatusSucceeded:
		return fmt.Sprintf("succeeded(%s)", s.ResultURI)
	case StatusFailed:
		return fmt.Sprintf("failed(%s)", s.FailureReason)
	default:
		return string(s.Kind)
	}
}

// CompletionEvent is broadcast by a backend when a transfer ends or when the
// user interacts with its system notification
type CompletionEvent struct {
	Handle  TransferHandle
	Status  TransferStatus
	Clicked bool
}

// ResultPath converts a result URI into a local filesystem path
func ResultPath(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		if u, err := url.Parse(uri); err == nil {
			return u.Path
		}
	}
	return uri
}
