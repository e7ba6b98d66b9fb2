// Package worker provides a NATS worker that narrates text published as
// processing events.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/core"
	"github.com/book-expert/voice-narrator/internal/voice"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds a single narration job.
const DefaultJobTimeout = 10 * time.Minute

var (
	// ErrTextKeyEmpty indicates that the event names no text object.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTemperatureRange indicates a negative temperature.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
)

// Narrator turns text into one assembled WAV payload.
type Narrator interface {
	Narrate(ctx context.Context, text, style string, overrides voice.Overrides) ([]byte, int, error)
}

// NatsWorker listens for narration jobs on a NATS subject and processes them
// one at a time.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	narrator       Narrator
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	narrator Narrator,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		narrator:       narrator,
		jobTimeout:     DefaultJobTimeout,
		log:            log,
	}
}

// SetJobTimeout changes the per-job timeout. Non-positive values are ignored.
func (w *NatsWorker) SetJobTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.jobTimeout = timeout
	}
}

// Run subscribes and blocks until ctx is cancelled, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Listening for narration jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.jobTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)

		return
	}

	audioKey, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process narration job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, narrates it and uploads the audio, returning its key.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	style, overrides, err := VoiceFromEvent(event)
	if err != nil {
		return "", err
	}

	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	audioData, chunks, err := w.narrator.Narrate(ctx, string(textData), style, overrides)
	if err != nil {
		return "", fmt.Errorf("failed to narrate text '%s': %w", event.TextKey, err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.audioStore.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Narrated '%s' (%d chunks, style %s) to '%s'", event.TextKey, chunks, style, audioKey)

	return audioKey, nil
}

// VoiceFromEvent derives the style and overrides for an event. An empty voice
// means neutral; a positive temperature overrides the model default.
func VoiceFromEvent(event *events.TextProcessedEvent) (string, voice.Overrides, error) {
	if event.TextKey == "" {
		return "", voice.Overrides{}, ErrTextKeyEmpty
	}

	if event.Temperature < 0 {
		return "", voice.Overrides{}, fmt.Errorf("%w: got %f", ErrTemperatureRange, event.Temperature)
	}

	style := event.Voice
	if style == "" {
		style = voice.Neutral
	}

	_, err := voice.Lookup(style)
	if err != nil {
		return "", voice.Overrides{}, err
	}

	return style, voice.Overrides{Temperature: event.Temperature}, nil
}

func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
