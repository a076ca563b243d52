package pipeline

import (
	"errors"

	"github.com/menta2k/visual-search/pkg/types"
)

// State is a pipeline interaction state
type State int

const (
	Idle State = iota
	Capturing
	Uploading
	AwaitingPoint
	Searching
	ShowingResults
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Uploading:
		return "uploading"
	case AwaitingPoint:
		return "awaiting_point"
	case Searching:
		return "searching"
	case ShowingResults:
		return "showing_results"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// busy reports whether an operation is in flight
func (s State) busy() bool {
	return s == Capturing || s == Uploading || s == Searching
}

var (
	// ErrBusy is returned for triggers that arrive while an operation is in flight
	ErrBusy = errors.New("pipeline busy")

	// ErrInvalidTransition is returned for triggers that are not valid in the current state
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDiscarded is returned when an operation finished after the pipeline moved on
	ErrDiscarded = errors.New("result discarded")
)

// ErrorKind classifies user visible errors
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrInvalidServerPath):
		return "invalid_server_path"
	case errors.Is(err, types.ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, types.ErrSearchFailed):
		return "search_failed"
	case errors.Is(err, types.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, types.ErrCaptureUnavailable):
		return "capture_unavailable"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of the controller
type Snapshot struct {
	SessionID string
	State     State
	Upload    *types.UploadedImage
	Box       types.DisplayBox
	Point     *types.NormalizedPoint
	Results   types.ResultSet
	Photos    types.PhotoCollection
	Err       error
}
