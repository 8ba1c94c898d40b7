package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "booking", "booking.cancelled", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	_, err = store.Insert(context.Background(), nil, "booking", "booking.cancelled", map[string]string{"foo": "bar"})
	require.NoError(t, err)

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "type", "payload", "attempts", "created_at"}).AddRow(id, "booking", "booking.cancelled", []byte("{\"foo\":\"bar\"}"), 2, now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10), DefaultMaxAttempts).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.JSONEq(t, `{"foo":"bar"}`, string(entries[0].Payload))
	assert.Equal(t, 2, entries[0].Attempts)

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUsesCallerTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewOutboxStore(mock)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "booking", "booking.cancelled", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), tx, "booking", "booking.cancelled", struct{}{})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

type recordingHandler struct {
	fail map[uuid.UUID]bool
	seen []uuid.UUID
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.seen = append(h.seen, entry.ID)
	if h.fail[entry.ID] {
		return errors.New("downstream unavailable")
	}
	return nil
}

func TestDrainSkipsFailedEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	good, bad := uuid.New(), uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "type", "payload", "attempts", "created_at"}).
		AddRow(bad, "booking", "booking.cancelled", []byte(`{}`), 0, time.Now()).
		AddRow(good, "booking", "booking.cancelled", []byte(`{}`), 0, time.Now())
	mock.ExpectQuery("SELECT id").WithArgs(int32(5), 3).WillReturnRows(rows)
	mock.ExpectExec("SET attempts = attempts \\+ 1").WithArgs(bad, "downstream unavailable").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET delivered_at").WithArgs(good).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	handler := &recordingHandler{fail: map[uuid.UUID]bool{bad: true}}
	d := NewDeliverer(NewOutboxStore(mock).WithMaxAttempts(3), handler, nil).WithBatchSize(5)

	assert.Equal(t, 1, d.Drain(context.Background()))
	assert.Equal(t, []uuid.UUID{bad, good}, handler.seen)
	require.NoError(t, mock.ExpectationsWereMet())
}
