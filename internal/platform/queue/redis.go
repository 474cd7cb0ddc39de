package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	streamPrefix = "careops:jobs:"
	deadStream   = "careops:jobs:dead"
	fieldJob     = "job"
)

// Options tunes the consumer side of a transport.
type Options struct {
	Group          string
	Consumer       string
	Concurrency    int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	BlockTimeout   time.Duration
	AttemptTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Group == "" {
		o.Group = "careops-workers"
	}
	if o.Consumer == "" {
		o.Consumer = "worker-1"
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = 5 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = time.Minute
	}
	return o
}

// RedisQueue is the Redis Streams transport: one stream per job type, a
// single consumer group, explicit acks. Redelivery happens when a consumer
// dies holding unacked entries and another claims them, or when a retryable
// failure re-adds the job with an incremented attempt counter.
type RedisQueue struct {
	client *redis.Client
	logger zerolog.Logger
	opts   Options
}

func NewRedis(redisURL string, logger zerolog.Logger, opts Options) (*RedisQueue, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{
		client: redis.NewClient(ropts),
		logger: logger,
		opts:   opts.withDefaults(),
	}, nil
}

// Ping verifies broker connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error { return q.client.Close() }

func streamFor(jobType string) string { return streamPrefix + jobType }

func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, args map[string]any) (*EnqueueResult, error) {
	job := NewJob(jobType, args, q.opts.MaxRetries)
	return q.add(ctx, job)
}

func (q *RedisQueue) add(ctx context.Context, job *Job) (*EnqueueResult, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", job.Type, err)
	}
	stream := streamFor(job.Type)
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{fieldJob: data},
	}).Err(); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	return &EnqueueResult{JobID: job.ID, Stream: stream}, nil
}

// Run consumes all registered job types until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context, reg *Registry) error {
	var wg sync.WaitGroup
	for _, jobType := range reg.Types() {
		stream := streamFor(jobType)
		if err := q.ensureGroup(ctx, stream); err != nil {
			return err
		}
		handler, _ := reg.Handler(jobType)
		for i := 0; i < q.opts.Concurrency; i++ {
			wg.Add(1)
			go func(jobType, stream string, h Handler, n int) {
				defer wg.Done()
				q.consumeLoop(ctx, jobType, stream, h, n)
			}(jobType, stream, handler, i)
		}
	}
	wg.Wait()
	return nil
}

func (q *RedisQueue) ensureGroup(ctx context.Context, stream string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, q.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group on %s: %w", stream, err)
	}
	return nil
}

// consumeLoop reads and dispatches entries, backing off on broker errors the
// same way the rest of the platform backs off on adapter errors.
func (q *RedisQueue) consumeLoop(ctx context.Context, jobType, stream string, h Handler, n int) {
	consumer := fmt.Sprintf("%s-%s-%d", q.opts.Consumer, jobType, n)
	brokerDelay := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.opts.Group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    q.opts.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			q.logger.Error().Err(err).Str("stream", stream).Dur("backoff", brokerDelay).
				Msg("job read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(brokerDelay):
			}
			brokerDelay *= 2
			if brokerDelay > q.opts.BackoffMax {
				brokerDelay = q.opts.BackoffMax
			}
			continue
		}
		brokerDelay = time.Second

		for _, str := range res {
			for _, msg := range str.Messages {
				q.dispatch(ctx, stream, msg, h)
			}
		}
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, stream string, msg redis.XMessage, h Handler) {
	raw, _ := msg.Values[fieldJob].(string)
	job := &Job{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		q.logger.Error().Err(err).Str("stream", stream).Str("msg_id", msg.ID).
			Msg("undecodable job dead-lettered")
		q.ack(ctx, stream, msg.ID)
		q.deadLetter(ctx, raw)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, q.opts.AttemptTimeout)
	err := h(attemptCtx, job)
	cancel()

	switch classify(job, err) {
	case verdictDone:
		q.ack(ctx, stream, msg.ID)
	case verdictRetry:
		q.ack(ctx, stream, msg.ID)
		job.Attempt++
		delay := Backoff(job.Attempt, q.opts.BackoffBase, q.opts.BackoffMax)
		q.logger.Warn().Err(err).Str("job_type", job.Type).Str("job_id", job.ID).
			Int("attempt", job.Attempt).Dur("delay", delay).Msg("job retry scheduled")
		select {
		case <-ctx.Done():
			// Shutting down: requeue immediately so the job is not lost.
		case <-time.After(delay):
		}
		if _, aerr := q.add(context.WithoutCancel(ctx), job); aerr != nil {
			q.logger.Error().Err(aerr).Str("job_id", job.ID).Msg("requeue failed, job lost to broker")
		}
	case verdictDead:
		q.ack(ctx, stream, msg.ID)
		q.logger.Error().Err(err).Str("job_type", job.Type).Str("job_id", job.ID).
			Int("attempt", job.Attempt).Msg("job dead-lettered")
		data, _ := json.Marshal(job)
		q.deadLetter(ctx, string(data))
	}
}

func (q *RedisQueue) ack(ctx context.Context, stream, msgID string) {
	if err := q.client.XAck(ctx, stream, q.opts.Group, msgID).Err(); err != nil {
		q.logger.Error().Err(err).Str("stream", stream).Str("msg_id", msgID).Msg("ack failed")
	}
}

func (q *RedisQueue) deadLetter(ctx context.Context, raw string) {
	if err := q.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: deadStream,
		Values: map[string]any{fieldJob: raw},
	}).Err(); err != nil {
		q.logger.Error().Err(err).Msg("dead-letter write failed")
	}
}
