package types

import "errors"

var (
	// ErrPermissionDenied means the photo store refused access
	ErrPermissionDenied = errors.New("photo store access denied")

	// ErrCaptureUnavailable means no capture device is ready. It is never user facing.
	ErrCaptureUnavailable = errors.New("capture device not ready")

	// ErrUploadFailed covers network errors, non-2xx responses and malformed bodies during upload
	ErrUploadFailed = errors.New("upload failed")

	// ErrSearchFailed covers network errors, non-2xx responses and malformed bodies during search
	ErrSearchFailed = errors.New("search failed")

	// ErrInvalidServerPath means the media root could not be located in the uploaded image URL
	ErrInvalidServerPath = errors.New("invalid server path")
)
