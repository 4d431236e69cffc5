package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/metrics"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "orders-topic",
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestPublishRoutesEventsByTopic(t *testing.T) {
	orderEvent := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "order"),
	}
	bookingEvent := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventBookingCreated,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "booking"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent, bookingEvent}}
	topics := &topicRegistry{topics: map[enums.OutboxEventType]string{
		enums.EventOrderCreated:   "orders-topic",
		enums.EventBookingCreated: "bookings-topic",
	}}
	service := newTestService(t, repo, nil, topics, &fakeDLQRepo{}, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	seen := map[string][]string{}
	service.publisherFactory = func(topic string) publisher {
		return &recordingPublisher{topic: topic, seen: seen}
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := seen["orders-topic"]; len(got) != 1 || got[0] != orderEvent.AggregateID.String() {
		t.Fatalf("unexpected orders topic messages: %v", got)
	}
	if got := seen["bookings-topic"]; len(got) != 1 || got[0] != bookingEvent.AggregateID.String() {
		t.Fatalf("unexpected bookings topic messages: %v", got)
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected both rows published, got %d", len(repo.published))
	}
	expected := `
# HELP mesa_outbox_published_total Outbox events published to Pub/Sub.
# TYPE mesa_outbox_published_total counter
mesa_outbox_published_total{event_type="booking_created"} 1
mesa_outbox_published_total{event_type="order_created"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "mesa_outbox_published_total"); err != nil {
		t.Fatalf("unexpected published metrics: %v", err)
	}
}

func TestServiceProcessBatchDLQOnPermanentPubSubStatus(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "missing-topic"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: status.Error(codes.NotFound, "topic not found")},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "orders-topic"},
		Payload:    &payloads.OrderStatusChangedEvent{},
	}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, dlqRepo, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected row parked, got %d", len(repo.failed))
	}
	if len(dlqRepo.entries) != 1 || dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlqRepo.entries)
	}
}

func TestIsNonRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{registry.NewNonRetryableError(errors.New("bad payload")), true},
		{status.Error(codes.InvalidArgument, "bad"), true},
		{status.Error(codes.PermissionDenied, "denied"), true},
		{status.Error(codes.Unavailable, "try later"), false},
		{errors.New("transient"), false},
	}
	for _, tc := range cases {
		if got := isNonRetryable(tc.err); got != tc.want {
			t.Fatalf("isNonRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap at 10s, got %s", got)
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	registry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, registry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "orders-topic",
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
	registry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, registry, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.Nop(),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
		Metrics:          metrics.NewOutboxMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results []publishResult
}

func (f *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type topicRegistry struct {
	topics map[enums.OutboxEventType]string
}

func (r *topicRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	topic, ok := r.topics[event.EventType]
	if !ok {
		return nil, registry.NewNonRetryableError(errors.New("unknown event"))
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: event.EventType, AggregateType: event.AggregateType, Topic: topic},
		Envelope:   outbox.PayloadEnvelope{EventID: event.ID.String(), OccurredAt: time.Now()},
	}, nil
}

type recordingPublisher struct {
	topic string
	seen  map[string][]string
}

func (p *recordingPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.seen[p.topic] = append(p.seen[p.topic], msg.Attributes["aggregate_id"])
	return fakePublishResult{}
}

type fakeGuard struct {
	claimed  map[uuid.UUID]bool
	released []uuid.UUID
}

func (g *fakeGuard) Claim(_ context.Context, publisher string, eventID uuid.UUID) (bool, error) {
	if g.claimed[eventID] {
		return false, nil
	}
	g.claimed[eventID] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, publisher string, eventID uuid.UUID) error {
	delete(g.claimed, eventID)
	g.released = append(g.released, eventID)
	return nil
}

func TestServiceGuardSkipsAlreadySentAndReleasesFailures(t *testing.T) {
	sentBefore := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}
	failing := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}
	repo := &fakeRepo{events: []models.OutboxEvent{sentBefore, failing}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	resolved := &registry.ResolvedEvent{Descriptor: registry.EventDescriptor{Topic: "orders-topic"}}

	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)
	guard := &fakeGuard{claimed: map[uuid.UUID]bool{sentBefore.ID: true}}
	service.guard = guard

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.published) != 1 || repo.published[0] != sentBefore.ID {
		t.Fatalf("expected the already-sent row to be marked published, got %v", repo.published)
	}
	if len(pub.results) != 0 {
		t.Fatalf("expected exactly one publish attempt")
	}
	if len(guard.released) != 1 || guard.released[0] != failing.ID {
		t.Fatalf("expected failed publish to release its claim, got %v", guard.released)
	}
	if len(repo.failed) != 1 || repo.failed[0] != failing.ID {
		t.Fatalf("expected failed row to be recorded, got %v", repo.failed)
	}
}

type countingRepo struct {
	fakeRepo
	pending int64
}

func (c *countingRepo) CountPending(context.Context) (int64, error) { return c.pending, nil }

type countingDLQ struct {
	fakeDLQRepo
	dead int64
}

func (c *countingDLQ) Count(context.Context) (int64, error) { return c.dead, nil }

func TestSampleBacklogSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	service := newTestService(t, &countingRepo{pending: 4}, &fakePublisher{}, &fakeRegistry{}, &countingDLQ{dead: 2}, nil)
	service.metrics = metrics.NewOutboxMetrics(reg)

	service.sampleBacklog(context.Background())

	expected := `
# HELP mesa_outbox_backlog Rows waiting in outbox_events (state=pending) or parked in outbox_dlq (state=dead).
# TYPE mesa_outbox_backlog gauge
mesa_outbox_backlog{state="dead"} 2
mesa_outbox_backlog{state="pending"} 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "mesa_outbox_backlog"); err != nil {
		t.Fatalf("unexpected backlog metrics: %v", err)
	}

	// a second call inside the sampling window is skipped
	service.repo = &countingRepo{pending: 9}
	service.sampleBacklog(context.Background())
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "mesa_outbox_backlog"); err != nil {
		t.Fatalf("expected gauges unchanged inside the window: %v", err)
	}
}

type capturingPublisher struct {
	messages []*gcppubsub.Message
}

func (p *capturingPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakePublishResult{}
}

func TestPublishSetsOrderingKeyWhenOrdered(t *testing.T) {
	event := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderStatusChanged, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}
	resolved := &registry.ResolvedEvent{Descriptor: registry.EventDescriptor{Topic: "orders-topic"}}

	for _, ordered := range []bool{true, false} {
		pub := &capturingPublisher{}
		service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)
		service.ordered = ordered

		if _, err := service.processBatch(context.Background()); err != nil {
			t.Fatalf("process batch returned error: %v", err)
		}
		if len(pub.messages) != 1 {
			t.Fatalf("expected one message, got %d", len(pub.messages))
		}
		want := ""
		if ordered {
			want = event.AggregateID.String()
		}
		if got := pub.messages[0].OrderingKey; got != want {
			t.Fatalf("ordered=%v: expected ordering key %q, got %q", ordered, want, got)
		}
	}
}
