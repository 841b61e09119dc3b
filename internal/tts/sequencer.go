package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/time/rate"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/scratch"
	"github.com/book-expert/narrator/internal/tts/ssml"
	"github.com/book-expert/narrator/internal/tts/text"
)

// Static errors.
var (
	ErrSynthesisCallFailed = errors.New("synthesis call failed")
	ErrNoAudioProduced     = errors.New("no audio produced")
	ErrEmptyAudio          = errors.New("service returned empty audio")
	ErrUnknownProsody      = errors.New("unknown prosody target")
	ErrSegmentNotSaved     = errors.New("segment could not be saved")
)

const (
	errFmtJobFailed       = "%w: fragment %d: %w"
	errFmtAllFailed       = "%w: all %d fragments failed, last error: %w"
	errFmtCancelled       = "synthesis stopped after %d of %d fragments: %w"
	logFmtRunStarted      = "Synthesizing %d fragments with voice %s (%s)"
	logFmtJobSkipped      = "Skipping fragment %d: %v"
	logFmtJobDone         = "Synthesized fragment %d/%d: %s (%d bytes)"
	logFmtRunFinished     = "Synthesis finished: %d segments, %d skipped"
	logFmtSegmentNotSaved = "Could not save segment %d: %v"
)

// ProsodyTarget selects where rate and pitch are applied.
type ProsodyTarget string

const (
	// ProsodyMarkup puts rate and pitch in a <prosody> element and sends a
	// neutral audio configuration.
	ProsodyMarkup ProsodyTarget = "markup"
	// ProsodyAudioConfig sends plain <speak> markup and puts rate and pitch
	// in the audio configuration.
	ProsodyAudioConfig ProsodyTarget = "audio_config"
)

// ParseProsodyTarget accepts "markup" or "audio_config"; empty means markup.
func ParseProsodyTarget(value string) (ProsodyTarget, error) {
	switch ProsodyTarget(strings.ToLower(strings.TrimSpace(value))) {
	case "", ProsodyMarkup:
		return ProsodyMarkup, nil
	case ProsodyAudioConfig:
		return ProsodyAudioConfig, nil
	default:
		return ProsodyMarkup, fmt.Errorf("%w: %q", ErrUnknownProsody, value)
	}
}

// Job is one synthesis call. Markup is the complete document sent to the
// service and Params is the audio configuration that accompanies it.
type Job struct {
	Fragment text.Fragment
	Voice    core.Voice
	Params   core.AudioParams
	Markup   string
}

// Segment is the audio written for one successful job.
type Segment struct {
	Index int
	Path  string
	Bytes int
}

// Outcome reports a synthesis run. Segments are in fragment order and may
// have gaps; Skipped lists the fragment indices that produced no audio.
type Outcome struct {
	Segments []Segment
	Skipped  []int
	Failures []error
}

// Paths returns the segment paths in order.
func (o Outcome) Paths() []string {
	paths := make([]string, 0, len(o.Segments))
	for _, segment := range o.Segments {
		paths = append(paths, segment.Path)
	}

	return paths
}

// SequencerConfig tunes a Sequencer.
type SequencerConfig struct {
	Prosody ProsodyTarget
	// RequestsPerMinute paces calls; zero or less disables pacing.
	RequestsPerMinute int
	// CallTimeout bounds one synthesis call; zero means no bound.
	CallTimeout time.Duration
	// EscapeText escapes XML special characters in fragment text. Leave it
	// off to pass embedded <say-as> markup through.
	EscapeText bool
}

// Sequencer submits jobs to a synthesizer strictly one at a time.
type Sequencer struct {
	synthesizer core.Synthesizer
	area        *scratch.Area
	limiter     *rate.Limiter
	config      SequencerConfig
	logger      *logger.Logger
}

// NewSequencer returns a Sequencer that writes segments into area.
func NewSequencer(
	synthesizer core.Synthesizer,
	area *scratch.Area,
	cfg SequencerConfig,
	log *logger.Logger,
) *Sequencer {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	if cfg.Prosody == "" {
		cfg.Prosody = ProsodyMarkup
	}

	return &Sequencer{
		synthesizer: synthesizer,
		area:        area,
		limiter:     limiter,
		config:      cfg,
		logger:      log,
	}
}

// Jobs builds one job per fragment, placing rate and pitch according to the
// configured prosody target so they are applied exactly once.
func (s *Sequencer) Jobs(fragments []text.Fragment, voice core.Voice, params core.AudioParams) []Job {
	prosody := ssml.Prosody{}
	callParams := params

	if s.config.Prosody == ProsodyMarkup {
		prosody = ssml.Prosody{Rate: params.SpeakingRate, Pitch: params.Pitch}
		callParams.SpeakingRate = 1.0
		callParams.Pitch = 0
	}

	jobs := make([]Job, 0, len(fragments))

	for _, fragment := range fragments {
		content := fragment.Content
		if s.config.EscapeText {
			content = ssml.Escape(content)
		}

		jobs = append(jobs, Job{
			Fragment: fragment,
			Voice:    voice,
			Params:   callParams,
			Markup:   ssml.Wrap(content, prosody),
		})
	}

	return jobs
}

// Run purges stale segments and synthesizes every fragment in order. A job
// that fails or returns no audio is logged and skipped. Cancellation of ctx
// is observed between fragments; a call already in flight runs to
// completion. When no job produced audio the error wraps ErrNoAudioProduced.
func (s *Sequencer) Run(
	ctx context.Context,
	fragments []text.Fragment,
	voice core.Voice,
	params core.AudioParams,
) (Outcome, error) {
	var outcome Outcome

	s.area.Purge()

	jobs := s.Jobs(fragments, voice, params)
	s.logger.Info(logFmtRunStarted, len(jobs), voice.Name, voice.LanguageCode)

	for position, job := range jobs {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return outcome, fmt.Errorf(errFmtCancelled, position, len(jobs), ctxErr)
		}

		waitErr := s.limiter.Wait(ctx)
		if waitErr != nil {
			return outcome, fmt.Errorf(errFmtCancelled, position, len(jobs), waitErr)
		}

		segment, jobErr := s.runJob(ctx, job)
		if jobErr != nil {
			s.logger.Warn(logFmtJobSkipped, job.Fragment.Index, jobErr)
			outcome.Skipped = append(outcome.Skipped, job.Fragment.Index)
			outcome.Failures = append(outcome.Failures, jobErr)

			continue
		}

		outcome.Segments = append(outcome.Segments, segment)
		s.logger.Info(logFmtJobDone, position+1, len(jobs), segment.Path, segment.Bytes)
	}

	s.logger.Info(logFmtRunFinished, len(outcome.Segments), len(outcome.Skipped))

	if len(outcome.Segments) == 0 {
		if len(outcome.Failures) == 0 {
			return outcome, fmt.Errorf("%w: no fragments to synthesize", ErrNoAudioProduced)
		}

		lastErr := outcome.Failures[len(outcome.Failures)-1]

		return outcome, fmt.Errorf(errFmtAllFailed, ErrNoAudioProduced, len(jobs), lastErr)
	}

	return outcome, nil
}

// runJob performs one call. The call context is detached from ctx so a
// cancellation never interrupts a request mid-flight.
func (s *Sequencer) runJob(ctx context.Context, job Job) (Segment, error) {
	callCtx := context.WithoutCancel(ctx)

	if s.config.CallTimeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(callCtx, s.config.CallTimeout)
		defer cancel()
	}

	audio, synthErr := s.synthesizer.Synthesize(callCtx, job.Markup, job.Voice, job.Params)
	if synthErr != nil {
		return Segment{}, fmt.Errorf(errFmtJobFailed, ErrSynthesisCallFailed, job.Fragment.Index, synthErr)
	}

	if len(audio) == 0 {
		return Segment{}, fmt.Errorf(errFmtJobFailed, ErrSynthesisCallFailed, job.Fragment.Index, ErrEmptyAudio)
	}

	path, writeErr := s.area.WriteSegment(job.Fragment.Index, job.Params.Encoding, audio)
	if writeErr != nil {
		s.logger.Error(logFmtSegmentNotSaved, job.Fragment.Index, writeErr)

		return Segment{}, fmt.Errorf(errFmtJobFailed, ErrSegmentNotSaved, job.Fragment.Index, writeErr)
	}

	return Segment{Index: job.Fragment.Index, Path: path, Bytes: len(audio)}, nil
}
