package ml

import (
	"errors"
	"fmt"
)

// ErrArtifactMissing is returned when no fitted pipeline exists yet.
var ErrArtifactMissing = errors.New("model unavailable: no trained artifact")

// ErrNotFitted is returned by a pipeline that has no fitted stages.
var ErrNotFitted = errors.New("model not trained")

// DataError is fatal to a training run.
type DataError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := "dataset"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DataError) Unwrap() error {
	return e.Err
}
