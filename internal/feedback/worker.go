package feedback

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/queue/streams"
	"github.com/mohammad-safakhou/prosora/models"
)

// Flusher replays writes deferred while persistence was down.
type Flusher interface {
	FlushPending(ctx context.Context) int
}

// Worker drains the performance stream and feeds the engine. Runs in its
// own process (prosorad learn) or alongside the API server.
type Worker struct {
	engine   *Engine
	consumer *streams.Consumer
	stream   string
	flusher  Flusher
	logger   *log.Logger
}

// NewWorker wires a stream consumer to the engine.
func NewWorker(cfg config.FeedbackConfig, client *redis.Client, engine *Engine, flusher Flusher, consumerName string, logger *log.Logger) (*Worker, error) {
	stream := cfg.Stream
	if stream == "" {
		stream = "prosora:performance"
	}
	group := cfg.Group
	if group == "" {
		group = "learners"
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LEARN] ", log.LstdFlags)
	}
	if err := streams.EnsureGroup(context.Background(), client, stream, group); err != nil {
		return nil, err
	}
	return &Worker{
		engine:   engine,
		consumer: streams.NewConsumer(client, group, consumerName),
		stream:   stream,
		flusher:  flusher,
		logger:   logger,
	}, nil
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	flushTick := time.NewTicker(30 * time.Second)
	defer flushTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flushTick.C:
			if w.flusher != nil {
				if remaining := w.flusher.FlushPending(ctx); remaining > 0 {
					w.logger.Printf("%d deferred writes still pending", remaining)
				}
			}
		default:
		}

		msgs, err := w.consumer.Read(ctx, w.stream, streams.WithBlock(5*time.Second), streams.WithCount(32))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Printf("stream read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg streams.Message) {
	if msg.Envelope.EventType != streams.EventPerformanceRecorded {
		_ = w.consumer.Ack(ctx, w.stream, msg.ID)
		return
	}
	var rec models.PerformanceRecord
	if err := json.Unmarshal(msg.Envelope.Data, &rec); err != nil {
		w.logger.Printf("dropping undecodable performance event %s: %v", msg.ID, err)
		_ = w.consumer.Ack(ctx, w.stream, msg.ID)
		return
	}
	if err := w.engine.Process(ctx, rec); err != nil {
		// leave unacked so the group redelivers it
		w.logger.Printf("processing failed for event %s: %v", msg.ID, err)
		return
	}
	_ = w.consumer.Ack(ctx, w.stream, msg.ID)
}
