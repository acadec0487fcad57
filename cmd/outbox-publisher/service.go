package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/metrics"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	maxJitter             = 250 * time.Millisecond
)

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	DomainPublisher() *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	DLQ        dlqRepository
	Metrics    *metrics.OutboxMetrics
	// Publisher overrides the domain topic publisher. Tests only.
	Publisher publisher
}

// Service drains outbox_events to the domain topic. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several publishers can run
// side by side without double-sending.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	pub         publisher
	topic       string
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	for name, missing := range map[string]bool{
		"config":            p.Config == nil,
		"logger":            p.Logger == nil,
		"database client":   p.DB == nil,
		"pubsub client":     p.PubSub == nil,
		"outbox repository": p.Repository == nil,
		"event registry":    p.Registry == nil,
		"dlq repository":    p.DLQ == nil,
	} {
		if missing {
			return nil, fmt.Errorf("%s is required", name)
		}
	}

	s := &Service{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		repo:        p.Repository,
		registry:    p.Registry,
		dlq:         p.DLQ,
		metrics:     p.Metrics,
		pub:         p.Publisher,
		topic:       p.Config.PubSub.DomainTopic,
		batchSize:   positiveOr(p.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(p.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		poll:        time.Duration(p.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}
	if s.pub == nil {
		if domain := p.PubSub.DomainPublisher(); domain != nil {
			s.pub = &orderedPublisher{Publisher: domain}
		}
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx ends. A full batch is followed immediately by the next
// one; an empty batch waits one poll interval; a failed batch backs off
// exponentially up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.poll
	for {
		n, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n >= s.batchSize:
			wait = s.poll
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		default:
			wait = s.poll
		}
		if err := sleep(ctx, wait+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

// processBatch returns how many rows it claimed.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}
		s.metrics.Batch()
		for _, event := range events {
			result, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			s.metrics.Dispatched(string(event.EventType), string(result))
		}
		return nil
	})
	return claimed, err
}

// dispatch settles one row. The returned error is reserved for bookkeeping
// failures, which abort the batch transaction.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := s.registry.Resolve(event)
	if err == nil {
		err = s.publish(ctx, event, resolved)
	}
	switch {
	case err == nil:
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(ctx, "outbox.published")
		return outcomePublished, nil
	case registry.IsPermanent(err):
		return outcomeDeadLetter, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case event.AttemptCount+1 >= s.maxAttempts:
		return outcomeDeadLetter, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err))
	}

	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox.publish_retry")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return "", fmt.Errorf("mark failed %s: %w", event.ID, markErr)
	}
	return outcomeRetry, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"dlq_reason": reason, "error": msg}), "outbox.dead_lettered")

	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if s.pub == nil || resolved.Topic != s.topic {
		return registry.Permanent(fmt.Errorf("no publisher for topic %q", resolved.Topic))
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	started := time.Now()
	result := s.pub.Publish(ctx, newMessage(event, resolved))
	if result == nil {
		return errors.New("publisher returned no result")
	}
	_, err := result.Get(ctx)
	s.metrics.ObservePublish(time.Since(started))
	return err
}

// newMessage keys ordering by aggregate so one order's events arrive in
// emission order. Consumers dedupe on event_id.
func newMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	version := resolved.Envelope.Version
	if version == 0 {
		version = 1
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"event_version":  strconv.Itoa(version),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// orderedPublisher resumes a paused ordering key after a failed publish so
// the row can be retried on the next poll.
type orderedPublisher struct {
	*gcppubsub.Publisher
}

func (p *orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &orderedResult{res: p.Publisher.Publish(ctx, msg), pub: p.Publisher, key: msg.OrderingKey}
}

type orderedResult struct {
	res *gcppubsub.PublishResult
	pub *gcppubsub.Publisher
	key string
}

func (r *orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}
