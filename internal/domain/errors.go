package domain

import "errors"

var (
	// ErrPermissionDenied means the user or the platform refused microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable covers capture failures other than permission
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
	// ErrResponderUnavailable covers timeouts, transport errors and non-2xx replies
	ErrResponderUnavailable = errors.New("responder unavailable")
	ErrPersistence          = errors.New("persistence failure")
	ErrUpload               = errors.New("upload failure")

	ErrNotFound       = errors.New("record not found")
	ErrNoSession      = errors.New("no signed-in user")
	ErrRecorderBusy   = errors.New("recorder is not idle")
	ErrRecorderClosed = errors.New("recorder closed")
)
