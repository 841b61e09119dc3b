// Package pipeline runs one conversion at a time: validate, chunk,
// synthesize sequentially, then merge the segments into one artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/narrator/internal/history"
	"github.com/book-expert/narrator/internal/media"
	"github.com/book-expert/narrator/internal/scratch"
	"github.com/book-expert/narrator/internal/tts"
	"github.com/book-expert/narrator/internal/tts/text"
)

// ErrConversionInProgress is returned when Convert is called while another
// conversion is running.
var ErrConversionInProgress = errors.New("a conversion is already in progress")

const (
	logFmtStarted        = "Run %s: converting %d characters with %s"
	logFmtChunked        = "Run %s: %d fragments (budget %d %s, %s strategy)"
	logFmtFinished       = "Run %s finished in %s: %s"
	logFmtSkipped        = "Run %s: fragment %d produced no audio"
	logFmtRecordFailed   = "Run %s: could not record history: %v"
	logFmtRejected       = "Rejected conversion request: %v"
	warnFmtSkipped       = "fragment %d was skipped: %v"
	errFmtChunkingFailed = "chunking failed: %w"
)

// Recorder journals finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Options control how text is prepared.
type Options struct {
	Chunking  text.Options
	Normalize bool
}

// Result describes a finished conversion.
type Result struct {
	RunID         string
	Output        string
	Fragments     int
	Segments      []int
	Skipped       []int
	Warnings      []string
	Indeterminate bool
	Duration      time.Duration
}

// Converter is the conversion orchestrator.
type Converter struct {
	mutex        sync.Mutex
	sequencer    *tts.Sequencer
	concatenator media.Concatenator
	area         *scratch.Area
	normalizer   *text.Normalizer
	recorder     Recorder
	options      Options
	logger       *logger.Logger
	newID        func() string
	clock        func() time.Time
}

// NewConverter wires a Converter. recorder may be nil.
func NewConverter(
	sequencer *tts.Sequencer,
	concatenator media.Concatenator,
	area *scratch.Area,
	recorder Recorder,
	options Options,
	log *logger.Logger,
) *Converter {
	return &Converter{
		sequencer:    sequencer,
		concatenator: concatenator,
		area:         area,
		normalizer:   text.NewNormalizer(),
		recorder:     recorder,
		options:      options,
		logger:       log,
		newID:        uuid.NewString,
		clock:        time.Now,
	}
}

// Convert turns req into one audio file at a well-known path in the scratch
// area. Fragments that fail are skipped and reported in Result.Warnings.
// An error wrapping media.ErrIndeterminateCompletion comes with a filled
// Result and should be shown as a warning; see Describe.
func (c *Converter) Convert(ctx context.Context, req Request) (Result, error) {
	if !c.mutex.TryLock() {
		return Result{}, ErrConversionInProgress
	}
	defer c.mutex.Unlock()

	validateErr := req.Validate()
	if validateErr != nil {
		c.logger.Warn(logFmtRejected, validateErr)

		return Result{}, validateErr
	}

	started := c.clock()
	result := Result{RunID: c.newID()}

	convertErr := c.convert(ctx, req, &result)
	result.Duration = c.clock().Sub(started)

	c.logger.Info(logFmtFinished, result.RunID, result.Duration.Round(time.Millisecond), Describe(convertErr).Kind)
	c.record(ctx, req, result, started, convertErr)

	return result, convertErr
}

func (c *Converter) convert(ctx context.Context, req Request, result *Result) error {
	input := req.Text
	if c.options.Normalize {
		input = c.normalizer.Normalize(input)
	}

	c.logger.Info(logFmtStarted, result.RunID, len(input), req.Voice.Name)

	fragments, chunkErr := text.Chunk(input, c.options.Chunking)
	if chunkErr != nil {
		return fmt.Errorf(errFmtChunkingFailed, chunkErr)
	}

	result.Fragments = len(fragments)
	c.logger.Info(logFmtChunked, result.RunID, len(fragments),
		c.options.Chunking.Budget, c.options.Chunking.Unit, c.options.Chunking.Strategy)

	outcome, runErr := c.sequencer.Run(ctx, fragments, req.voice(), req.params())

	for position, index := range outcome.Skipped {
		c.logger.Warn(logFmtSkipped, result.RunID, index)
		result.Skipped = append(result.Skipped, index)
		result.Warnings = append(result.Warnings, fmt.Sprintf(warnFmtSkipped, index, outcome.Failures[position]))
	}

	for _, segment := range outcome.Segments {
		result.Segments = append(result.Segments, segment.Index)
	}

	if runErr != nil {
		return runErr
	}

	output := c.area.FinalPath(req.encoding())

	concatErr := c.concatenator.Concatenate(ctx, outcome.Paths(), output)
	if errors.Is(concatErr, media.ErrIndeterminateCompletion) {
		result.Output = output
		result.Indeterminate = true
		result.Warnings = append(result.Warnings, concatErr.Error())

		return concatErr
	}

	if concatErr != nil {
		return concatErr
	}

	result.Output = output

	return nil
}

func (c *Converter) record(ctx context.Context, req Request, result Result, started time.Time, convertErr error) {
	if c.recorder == nil {
		return
	}

	status := Describe(convertErr)

	recordErr := c.recorder.Record(context.WithoutCancel(ctx), history.Run{
		ID:           result.RunID,
		StartedAt:    started,
		Duration:     result.Duration,
		Voice:        req.Voice.Name,
		LanguageCode: req.Voice.LanguageCode,
		Fragments:    result.Fragments,
		Segments:     len(result.Segments),
		Skipped:      len(result.Skipped),
		Status:       string(status.Kind),
		Message:      status.Message,
		Output:       result.Output,
	})
	if recordErr != nil {
		c.logger.Warn(logFmtRecordFailed, result.RunID, recordErr)
	}
}
