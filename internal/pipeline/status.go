package pipeline

import (
	"context"
	"errors"

	"github.com/book-expert/narrator/internal/handoff"
	"github.com/book-expert/narrator/internal/media"
	"github.com/book-expert/narrator/internal/tts"
	"github.com/book-expert/narrator/internal/tts/text"
)

// Kind classifies the outcome of a conversion for the user.
type Kind string

const (
	KindSuccess    Kind = "success"
	KindWarning    Kind = "warning"
	KindValidation Kind = "validation"
	KindBusy       Kind = "busy"
	KindRemote     Kind = "remote"
	KindScratch    Kind = "scratch"
	KindMerge      Kind = "merge"
	KindCancelled  Kind = "cancelled"
	KindFailure    Kind = "failure"
)

// Status is a user-facing description of a conversion outcome.
type Status struct {
	Kind    Kind
	Message string
	Err     error
}

// Fatal reports whether no usable artifact was produced.
func (s Status) Fatal() bool {
	return s.Kind != KindSuccess && s.Kind != KindWarning
}

// Describe maps the error returned by Convert to a Status. Every failure
// class has its own kind so callers never confuse one with another.
func Describe(err error) Status {
	status := Status{Err: err}

	switch {
	case err == nil:
		status.Kind, status.Message = KindSuccess, "Conversion complete."
	case errors.Is(err, media.ErrIndeterminateCompletion):
		status.Kind, status.Message = KindWarning,
			"The audio may be incomplete: the merge did not confirm completion."
	case errors.Is(err, ErrConversionInProgress):
		status.Kind, status.Message = KindBusy, "A conversion is already running."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status.Kind, status.Message = KindCancelled, "The conversion was cancelled."
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, text.ErrInvalidArgument),
		errors.Is(err, text.ErrEmptyResult),
		errors.Is(err, handoff.ErrMissingValue),
		errors.Is(err, handoff.ErrInvalidValue):
		status.Kind, status.Message = KindValidation, "Please check the text and voice settings: "+err.Error()
	case errors.Is(err, tts.ErrSegmentNotSaved):
		status.Kind, status.Message = KindScratch,
			"Audio could not be written to the scratch directory; check paths.scratch_dir: "+err.Error()
	case errors.Is(err, tts.ErrNoAudioProduced), errors.Is(err, tts.ErrSynthesisCallFailed):
		status.Kind, status.Message = KindRemote, "The speech service produced no audio: "+err.Error()
	case errors.Is(err, media.ErrNoSegmentsToConcatenate), errors.Is(err, media.ErrConcatenationFailed):
		status.Kind, status.Message = KindMerge, "The audio segments could not be merged: "+err.Error()
	default:
		status.Kind, status.Message = KindFailure, "Unexpected error: "+err.Error()
	}

	return status
}
