package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthtech/platform/internal/platform/blobstore"
	"github.com/healthtech/platform/internal/platform/queue"
)

// Processor consumes queued ingestion jobs: it downloads the referenced
// object, validates it line by line, and rewrites the validated records
// under the processed prefix. Validation failure is terminal for the
// object; nothing is promoted. Transient store failures leave the message
// on the queue for redelivery.
type Processor struct {
	store           blobstore.Store
	queue           queue.Queue
	processedPrefix string
	log             zerolog.Logger
}

func NewProcessor(store blobstore.Store, q queue.Queue, processedPrefix string, log zerolog.Logger) *Processor {
	if processedPrefix == "" {
		processedPrefix = "processed/"
	}
	return &Processor{store: store, queue: q, processedPrefix: processedPrefix, log: log}
}

// Run polls the queue until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := p.queue.Receive(ctx, 10)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.log.Error().Err(err).Msg("receive failed")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, msg := range messages {
			p.handle(ctx, msg)
		}

		if len(messages) == 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// handle processes one message and settles it. Validation failures are
// terminal (the object will never become valid on retry) and the message is
// deleted; transient store failures leave the message for redelivery after
// the visibility timeout.
func (p *Processor) handle(ctx context.Context, msg queue.Message) {
	err := p.handleMessage(ctx, msg)
	if err != nil {
		p.log.Error().Err(err).Str("body", msg.Body).Msg("job failed")
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return
		}
	}
	if err := p.queue.Delete(ctx, msg.Handle); err != nil {
		p.log.Error().Err(err).Msg("delete message failed")
	}
}

func (p *Processor) handleMessage(ctx context.Context, msg queue.Message) error {
	var job jobMessage
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		// A message that does not decode is poison; retrying cannot help.
		return validationErrorf("decode job message: %v", err)
	}
	return p.ProcessObject(ctx, job.Key)
}

// ProcessObject validates one stored NDJSON object and writes the validated
// content to the processed prefix.
func (p *Processor) ProcessObject(ctx context.Context, key string) error {
	content, err := p.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}

	records, err := ValidateNDJSON(string(content))
	if err != nil {
		return fmt.Errorf("validate %s: %w", key, err)
	}

	var out strings.Builder
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record from %s: %w", key, err)
		}
		out.Write(line)
		out.WriteByte('\n')
	}

	destKey := p.processedPrefix + path.Base(key)
	if err := p.store.Put(ctx, destKey, []byte(out.String()), "application/x-ndjson", nil); err != nil {
		return fmt.Errorf("upload %s: %w", destKey, err)
	}

	p.log.Info().
		Str("source", key).
		Str("dest", destKey).
		Int("records", len(records)).
		Msg("object processed")
	return nil
}
