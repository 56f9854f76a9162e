package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBillingStream = "billing:events"
	DefaultBillingGroup  = "billing-workers"
)

// BillingQueue appends stored webhook ids to a redis stream.
type BillingQueue struct {
	Redis  *redis.Client
	Stream string
	MaxLen int64
}

func (q *BillingQueue) Enqueue(ctx context.Context, eventID string) error {
	stream := q.Stream
	if stream == "" {
		stream = DefaultBillingStream
	}
	maxLen := q.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{"event_id": eventID},
	}).Err()
}

type BillingProcessor interface {
	ProcessEvent(ctx context.Context, eventID string) error
	ReplayPending(ctx context.Context, limit int) (int, error)
}

// BillingWorkerPool consumes the billing stream with a consumer group. The
// database stays the source of truth: failed messages are acked and picked
// up again by the periodic replay of unprocessed events.
type BillingWorkerPool struct {
	Redis      *redis.Client
	Processor  BillingProcessor
	NumWorkers int
	Logger     logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string
	ReplayEvery    time.Duration
	ReplayBatch    int
}

func (p *BillingWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Processor == nil {
		return errors.New("BillingWorkerPool missing dependency: Redis/Processor must be set")
	}
	p.defaults()

	err := p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	go p.runReplay(ctx)
	return nil
}

func (p *BillingWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = DefaultBillingStream
	}
	if p.Group == "" {
		p.Group = DefaultBillingGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "billing-" + uuid.NewString()[:8]
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.ReplayEvery <= 0 {
		p.ReplayEvery = 5 * time.Minute
	}
	if p.ReplayBatch <= 0 {
		p.ReplayBatch = 100
	}
	if p.Logger == nil {
		p.Logger = logrus.StandardLogger()
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (p *BillingWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() == nil {
				p.Logger.WithError(err).WithField("consumer", consumer).Warn("billing stream read failed")
			}
			sleep(ctx, 500*time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *BillingWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	eventID, _ := msg.Values["event_id"].(string)
	log := p.Logger.WithFields(logrus.Fields{"redis_id": msg.ID, "event_id": eventID})
	if eventID == "" {
		log.Warn("billing message without event_id, dropping")
		return
	}
	if err := p.Processor.ProcessEvent(ctx, eventID); err != nil {
		log.WithError(err).Error("billing event failed, left for replay")
	}
}

func (p *BillingWorkerPool) runReplay(ctx context.Context) {
	t := time.NewTicker(p.ReplayEvery)
	defer t.Stop()
	for {
		p.replay(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (p *BillingWorkerPool) replay(ctx context.Context) {
	n, err := p.Processor.ReplayPending(ctx, p.ReplayBatch)
	if err != nil {
		p.Logger.WithError(err).Warn("billing replay failed")
		return
	}
	if n > 0 {
		p.Logger.WithField("events", n).Info("replayed pending billing events")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
