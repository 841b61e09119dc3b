// Package worker provides a NATS worker that serves conversion requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/pipeline"
	"github.com/book-expert/narrator/internal/scratch"
)

// Long stories take many sequential synthesis calls.
const handleMessageTimeout = 30 * time.Minute

const defaultTitle = "narration"

var (
	// ErrSubjectEmpty indicates that no subject was configured.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrNoText indicates a request with neither inline text nor a text key.
	ErrNoText = errors.New("request has no text and no text key")
)

// Converter is the conversion entry point the worker drives.
type Converter interface {
	Convert(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// ConversionRequest asks for one story to be narrated. The text is either
// inline or stored under TextKey in the text bucket.
type ConversionRequest struct {
	Header       events.EventHeader `json:"header"`
	Title        string             `json:"title,omitempty"`
	Text         string             `json:"text,omitempty"`
	TextKey      string             `json:"text_key,omitempty"`
	Voice        string             `json:"voice"`
	LanguageCode string             `json:"language_code"`
	Gender       string             `json:"gender"`
	SpeakingRate float64            `json:"speaking_rate,omitempty"`
	Pitch        float64            `json:"pitch,omitempty"`
	Encoding     string             `json:"encoding,omitempty"`
}

// ConversionReply answers a ConversionRequest. AudioKey is set whenever an
// artifact was uploaded, including indeterminate merges.
type ConversionReply struct {
	Header    events.EventHeader `json:"header"`
	Status    pipeline.Kind      `json:"status"`
	Message   string             `json:"message"`
	RunID     string             `json:"run_id,omitempty"`
	AudioKey  string             `json:"audio_key,omitempty"`
	Fragments int                `json:"fragments,omitempty"`
	Skipped   []int              `json:"skipped,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// NatsWorker listens for conversion requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queueGroup     string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	converter      Converter
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. An empty
// queueGroup subscribes every worker to every request.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	queueGroup string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	converter Converter,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queueGroup:     queueGroup,
		textStore:      textStore,
		audioStore:     audioStore,
		converter:      converter,
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.queueGroup != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.handleMessage)
	} else {
		sub, err = w.natsConnection.Subscribe(w.subject, w.handleMessage)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for conversion requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	request, err := parseRequest(msg)
	if err != nil {
		w.log.Error("Failed to parse conversion request: %v", err)
		w.respond(msg, failureReply(replyHeader(events.EventHeader{}), pipeline.Describe(
			fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, err))))

		return
	}

	reply := w.process(ctx, request)

	w.respond(msg, reply)
}

// process runs one conversion and uploads the artifact.
func (w *NatsWorker) process(ctx context.Context, request *ConversionRequest) ConversionReply {
	header := replyHeader(request.Header)

	story, textErr := w.storyText(ctx, request)
	if textErr != nil {
		w.log.Error("Workflow %s: %v", request.Header.WorkflowID, textErr)

		return failureReply(header, pipeline.Describe(textErr))
	}

	result, convertErr := w.converter.Convert(ctx, pipeline.Request{
		Text: story,
		Voice: core.Voice{
			LanguageCode: request.LanguageCode,
			Name:         request.Voice,
			Gender:       core.Gender(request.Gender),
		},
		SpeakingRate: request.SpeakingRate,
		Pitch:        request.Pitch,
		Encoding:     core.Encoding(request.Encoding),
	})
	status := pipeline.Describe(convertErr)

	reply := ConversionReply{
		Header:    header,
		Status:    status.Kind,
		Message:   status.Message,
		RunID:     result.RunID,
		Fragments: result.Fragments,
		Skipped:   result.Skipped,
		Warnings:  result.Warnings,
	}

	if status.Fatal() {
		w.log.Error("Workflow %s failed: %v", request.Header.WorkflowID, convertErr)

		return reply
	}

	audioKey := artifactKey(result, request.Title)

	uploadErr := w.audioStore.UploadFile(ctx, audioKey, result.Output)
	if uploadErr != nil {
		w.log.Error("Workflow %s: failed to upload audio: %v", request.Header.WorkflowID, uploadErr)

		return failureReply(header, pipeline.Describe(uploadErr))
	}

	reply.AudioKey = audioKey
	w.log.Info("Workflow %s: uploaded %s", request.Header.WorkflowID, audioKey)

	return reply
}

func (w *NatsWorker) storyText(ctx context.Context, request *ConversionRequest) (string, error) {
	if strings.TrimSpace(request.Text) != "" {
		return request.Text, nil
	}

	if request.TextKey == "" {
		return "", fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, ErrNoText)
	}

	data, err := w.textStore.Download(ctx, request.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", request.TextKey, err)
	}

	return string(data), nil
}

// respond marshals and publishes the reply when the sender asked for one.
func (w *NatsWorker) respond(msg *nats.Msg, reply ConversionReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

func parseRequest(msg *nats.Msg) (*ConversionRequest, error) {
	var request ConversionRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &request, nil
}

// artifactKey is "<run id>/<title><ext>", unique per run.
func artifactKey(result pipeline.Result, title string) string {
	name := scratch.SanitizeName(title)
	if name == "" {
		name = defaultTitle
	}

	return result.RunID + "/" + name + filepath.Ext(result.Output)
}

// replyHeader keeps the workflow and identity of the request and stamps a
// fresh event.
func replyHeader(request events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: request.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}

func failureReply(header events.EventHeader, status pipeline.Status) ConversionReply {
	return ConversionReply{Header: header, Status: status.Kind, Message: status.Message}
}
