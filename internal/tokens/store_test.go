package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestCreateTableCopiesTemplateTokensAsOpen(t *testing.T) {
	store, mock := newMockStore(t)
	key := NewKey(uuid.New(), uuid.New(), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))

	mock.ExpectExec("INSERT INTO token_tables").
		WithArgs(pgxmock.AnyArg(), key.DoctorID, key.ScheduleID, key.TokenDate, "10:00", "12:00", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tokens").
		WithArgs(pgxmock.AnyArg(), []int{1, 2}, []string{"NORMAL", "NORMAL"}, []string{"10:00", "10:10"}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	table, err := store.CreateTable(context.Background(), nil, NewTable{
		Key:       key,
		StartTime: "10:00",
		EndTime:   "12:00",
		Tokens: []Token{
			{Number: 0, Type: TypeFastTrack},
			{Number: 1, Type: "NORMAL", Time: "10:00", Status: StatusClosed},
			{Number: 2, Type: "NORMAL", Time: "10:10"},
		},
	})
	require.NoError(t, err)
	require.Len(t, table.Tokens, 2)
	for _, tok := range table.Tokens {
		assert.Equal(t, StatusOpen, tok.Status)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTableDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO token_tables").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := store.CreateTable(context.Background(), nil, NewTable{Key: NewKey(uuid.New(), uuid.New(), time.Now())})
	assert.ErrorIs(t, err, ErrTableExists)
}

func TestGetTableLoadsTokens(t *testing.T) {
	store, mock := newMockStore(t)
	key := NewKey(uuid.New(), uuid.New(), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	tableID := uuid.New()

	mock.ExpectQuery("SELECT id, start_time, end_time, created_at").
		WithArgs(key.DoctorID, key.ScheduleID, key.TokenDate).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_time", "end_time", "created_at"}).
			AddRow(tableID, "10:00", "12:00", time.Now()))
	mock.ExpectQuery("SELECT number, type, time, status").
		WithArgs(tableID).
		WillReturnRows(pgxmock.NewRows([]string{"number", "type", "time", "status"}).
			AddRow(1, "NORMAL", "10:00", "OPEN").
			AddRow(2, "NORMAL", "10:10", "BLOCKED"))

	table, err := store.GetTable(context.Background(), nil, key)
	require.NoError(t, err)
	assert.Equal(t, tableID, table.ID)
	require.Len(t, table.Tokens, 2)
	assert.Equal(t, StatusBlocked, table.Tokens[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTableNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, start_time").WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnError(pgx.ErrNoRows)

	_, err := store.GetTable(context.Background(), nil, NewKey(uuid.New(), uuid.New(), time.Now()))
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestBlockOpenToken(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()
	mock.ExpectExec("UPDATE tokens SET status = 'BLOCKED'").
		WithArgs(tableID, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Block(context.Background(), nil, tableID, 1, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockClassifiesMiss(t *testing.T) {
	cases := []struct {
		name    string
		current string
		missing bool
		want    error
	}{
		{name: "already blocked", current: "BLOCKED", want: ErrAlreadyBlocked},
		{name: "already booked", current: "BOOKED", want: ErrAlreadyBooked},
		{name: "closed", current: "CLOSED", want: ErrInvalidTransition},
		{name: "missing", missing: true, want: ErrTokenNotFound},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tableID := uuid.New()
			mock.ExpectExec("UPDATE tokens SET status = 'BLOCKED'").
				WithArgs(tableID, 4, pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			expect := mock.ExpectQuery("SELECT status FROM tokens").WithArgs(tableID, 4)
			if tt.missing {
				expect.WillReturnError(pgx.ErrNoRows)
			} else {
				expect.WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(tt.current))
			}

			err := store.Block(context.Background(), nil, tableID, 4, time.Now())
			assert.ErrorIs(t, err, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookRequiresBlockedToken(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()

	mock.ExpectQuery("UPDATE tokens SET status = 'BOOKED'").
		WithArgs(tableID, 2, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"number", "type", "time"}).AddRow(2, "NORMAL", "10:10"))
	tok, err := store.Book(context.Background(), nil, tableID, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Token{Number: 2, Type: "NORMAL", Time: "10:10", Status: StatusBooked}, tok)

	mock.ExpectQuery("UPDATE tokens SET status = 'BOOKED'").
		WithArgs(tableID, 3, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM tokens").
		WithArgs(tableID, 3).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("OPEN"))
	_, err = store.Book(context.Background(), nil, tableID, 3, time.Now())
	assert.ErrorIs(t, err, ErrNotBlocked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()
	mock.ExpectExec("UPDATE tokens SET status = 'OPEN'").
		WithArgs(tableID, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE tokens SET status = 'OPEN'").
		WithArgs(tableID, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	released, err := store.Release(context.Background(), nil, tableID, 1)
	require.NoError(t, err)
	assert.True(t, released)
	released, err = store.Release(context.Background(), nil, tableID, 1)
	require.NoError(t, err)
	assert.False(t, released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseBlockMatchesBlockInstant(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()
	blockedAt := time.Date(2026, 3, 2, 8, 30, 0, 987654321, time.UTC)
	stored := time.Date(2026, 3, 2, 8, 30, 0, 987654000, time.UTC)

	mock.ExpectExec("AND blocked_at = \\$3").
		WithArgs(tableID, 2, stored).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("AND blocked_at = \\$3").
		WithArgs(tableID, 2, stored).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	released, err := store.ReleaseBlock(context.Background(), nil, tableID, 2, blockedAt)
	require.NoError(t, err)
	assert.False(t, released, "a newer block holds the token")
	released, err = store.ReleaseBlock(context.Background(), nil, tableID, 2, blockedAt)
	require.NoError(t, err)
	assert.True(t, released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseExpiredReturnsRefs(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()
	cutoff := time.Now().Add(-time.Minute)
	mock.ExpectQuery("UPDATE tokens t SET status = 'OPEN'").
		WithArgs(cutoff.UTC(), 50).
		WillReturnRows(pgxmock.NewRows([]string{"table_id", "number"}).AddRow(a, 1).AddRow(b, 7))

	refs, err := store.ReleaseExpired(context.Background(), nil, cutoff, 50)
	require.NoError(t, err)
	assert.Equal(t, []Ref{{TableID: a, Number: 1}, {TableID: b, Number: 7}}, refs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkVisitedAndReopen(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()
	mock.ExpectExec("UPDATE tokens SET status = \\$4").
		WithArgs(tableID, 5, "BOOKED", "VISITED", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkVisited(context.Background(), nil, tableID, 5, time.Now()))

	mock.ExpectExec("UPDATE tokens SET status = \\$4").
		WithArgs(tableID, 5, "BOOKED", "OPEN", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM tokens").
		WithArgs(tableID, 5).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("VISITED"))
	err := store.Reopen(context.Background(), nil, tableID, 5, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseDayPartitionsTokens(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()
	mock.ExpectQuery("UPDATE tokens").
		WithArgs(tableID, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"number", "status"}).
			AddRow(1, "CLOSED").
			AddRow(2, "CANCELLED").
			AddRow(3, "CLOSED"))

	changes, err := store.CloseDay(context.Background(), nil, tableID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, changes.Closed)
	assert.Equal(t, []int{2}, changes.Cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForceReleaseExplainsMiss(t *testing.T) {
	store, mock := newMockStore(t)
	tableID := uuid.New()
	mock.ExpectExec("UPDATE tokens SET status = 'OPEN'").
		WithArgs(tableID, 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE tokens SET status = 'OPEN'").
		WithArgs(tableID, 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM tokens").
		WithArgs(tableID, 5).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("BOOKED"))

	require.NoError(t, store.ForceRelease(context.Background(), nil, tableID, 4))
	err := store.ForceRelease(context.Background(), nil, tableID, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
