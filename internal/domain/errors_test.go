package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadError_Error(t *testing.T) {
	tests := []struct {
		err  *DownloadError
		want string
	}{
		{NewDownloadError(KindPermissionDenied, nil), "storage permission denied"},
		{NewDownloadError(KindServiceUnavailable, ErrBackendUnavailable), "service unavailable"},
		{NewDownloadError(KindEnqueueFailed, nil), "file not found"},
		{NewTransferError(FailureHTTPError, "404"), "transfer failed: http error"},
		{NewTransferError(FailureInsufficientSpace, ""), "transfer failed: insufficient space"},
		{NewTransferError("bogus", ""), "transfer failed: unknown error"},
		{NewDownloadError(KindVerificationFailed, nil), "downloaded file could not be found"},
		{NewDownloadError(KindInstallFailed, nil), "install failed, open manually"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDownloadError_Unwrap(t *testing.T) {
	err := NewDownloadError(KindServiceUnavailable, ErrBackendUnavailable)
	wrapped := fmt.Errorf("context: %w", err)

	assert.True(t, errors.Is(wrapped, ErrBackendUnavailable))

	var target *DownloadError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, KindServiceUnavailable, target.Kind)
}

func TestNewTransferError_Detail(t *testing.T) {
	err := NewTransferError(FailureHTTPError, "unexpected status 404")
	require.Error(t, errors.Unwrap(err))
	assert.Equal(t, "unexpected status 404", errors.Unwrap(err).Error())

	assert.Nil(t, errors.Unwrap(NewTransferError(FailureUnknown, "")))
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewDownloadError(KindEnqueueFailed, nil))

	assert.True(t, IsKind(err, KindEnqueueFailed))
	assert.False(t, IsKind(err, KindTransferFailed))
	assert.False(t, IsKind(errors.New("plain"), KindEnqueueFailed))
}
