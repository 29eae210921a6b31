package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

func TestEmitWritesEnvelope(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), logger.Nop())
	orderID := uuid.New()
	userID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         UserActor(userID, "customer"),
			Data:          map[string]any{"order_number": "ORD-VM001-123456"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderPaid, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, userID, *envelope.Actor.UserID)
	assert.JSONEq(t, `{"order_number":"ORD-VM001-123456"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	assert.ErrorIs(t, err, ErrNoTransaction)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), nil)

	cases := map[string]DomainEvent{
		"missing type":      {AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventOrderPaid, AggregateType: "machine", AggregateID: uuid.New()},
		"nil aggregate":     {EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			assert.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitOnceSkipsDuplicates(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), nil)
	event := DomainEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Actor:         SystemActor("dispensing_code_expiry"),
		Data:          map[string]string{"reason": "expired"},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitOnce(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderDispensed, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 5}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)

	require.NoError(t, repo.MarkFailedTx(db, first.ID, errors.New("broker down")))
	var reloaded models.OutboxEvent
	require.NoError(t, db.First(&reloaded, "id = ?", first.ID).Error)
	assert.Equal(t, 1, reloaded.AttemptCount)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "broker down", *reloaded.LastError)

	require.NoError(t, repo.MarkPublishedTx(db, first.ID))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	deleted, err := repo.DeletePublishedBefore(db, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestRepositoryMarkTerminalParksRow(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	event := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 2}
	require.NoError(t, repo.Insert(db, event))

	require.NoError(t, repo.MarkTerminalTx(db, event.ID, errors.New("unsupported event type"), 10))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var reloaded models.OutboxEvent
	require.NoError(t, db.First(&reloaded, "id = ?", event.ID).Error)
	assert.Equal(t, 10, reloaded.AttemptCount)
	assert.Nil(t, reloaded.PublishedAt)
	assert.Error(t, repo.MarkTerminalTx(nil, event.ID, nil, 10))
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewDLQRepository(db)
	eventID := uuid.New()
	long := strings.Repeat("x", maxErrorLen+50)

	require.NoError(t, repo.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventFinalizationFailed,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"reason":"insufficient_stock"}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		AttemptCount:  10,
	}))

	found, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxErrorLen)
	assert.False(t, found.FailedAt.IsZero())

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Error(t, repo.InsertTx(nil, models.OutboxDLQ{}))
}

func TestDLQReplayRequeuesEvent(t *testing.T) {
	db := dbtest.Open(t)
	outboxRepo := NewRepository(db)
	dlqRepo := NewDLQRepository(db)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, outboxRepo.Insert(db, event))
	require.NoError(t, outboxRepo.MarkTerminalTx(db, event.ID, errors.New("broker down"), 10))
	require.NoError(t, dlqRepo.InsertTx(db, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
	}))
	require.NoError(t, dlqRepo.InsertTx(db, models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
	}))

	replayable, err := dlqRepo.ListReplayable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, replayable, 1)
	require.NoError(t, dlqRepo.Replay(context.Background(), replayable[0].ID))

	var reloaded models.OutboxEvent
	require.NoError(t, db.First(&reloaded, "id = ?", event.ID).Error)
	assert.Zero(t, reloaded.AttemptCount)
	assert.Nil(t, reloaded.LastError)

	all, err := dlqRepo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.ErrorIs(t, dlqRepo.Replay(context.Background(), all[0].ID), ErrNotReplayable)
}
