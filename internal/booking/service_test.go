package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramurama/populardoctor-webapi/internal/availability"
	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/events"
	"github.com/ramurama/populardoctor-webapi/internal/notify"
	"github.com/ramurama/populardoctor-webapi/internal/sequence"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// fakeTokens is an in-memory token table store. Its conditional transitions
// run under one mutex, mirroring the row-level atomicity of the SQL store.
type fakeTokens struct {
	mu        sync.Mutex
	table     *tokens.Table
	closed    tokens.DayChanges
	blockedAt time.Time
}

func newFakeTokens(statuses ...tokens.Status) *fakeTokens {
	table := &tokens.Table{
		ID:        uuid.New(),
		Key:       tokens.NewKey(uuid.New(), uuid.New(), time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)),
		StartTime: "10:00",
		EndTime:   "12:00",
	}
	for i, s := range statuses {
		table.Tokens = append(table.Tokens, tokens.Token{Number: i + 1, Type: "NORMAL", Time: "10:" + string(rune('0'+i)) + "0", Status: s})
	}
	return &fakeTokens{table: table}
}

func (f *fakeTokens) status(number int) tokens.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.table.Tokens {
		if tok.Number == number {
			return tok.Status
		}
	}
	return ""
}

func (f *fakeTokens) move(number int, from, to tokens.Status, miss error) (tokens.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tok := range f.table.Tokens {
		if tok.Number != number {
			continue
		}
		if tok.Status != from {
			if tok.Status == tokens.StatusBlocked && to == tokens.StatusBlocked {
				return tokens.Token{}, tokens.ErrAlreadyBlocked
			}
			if tok.Status == tokens.StatusBooked {
				return tokens.Token{}, tokens.ErrAlreadyBooked
			}
			return tokens.Token{}, miss
		}
		f.table.Tokens[i].Status = to
		return f.table.Tokens[i], nil
	}
	return tokens.Token{}, tokens.ErrTokenNotFound
}

func (f *fakeTokens) GetTable(_ context.Context, _ tokens.Querier, key tokens.Key) (*tokens.Table, error) {
	if key != f.table.Key {
		return nil, tokens.ErrTableNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.table
	cp.Tokens = append([]tokens.Token(nil), f.table.Tokens...)
	return &cp, nil
}

func (f *fakeTokens) GetTableByID(ctx context.Context, q tokens.Querier, id uuid.UUID) (*tokens.Table, error) {
	if id != f.table.ID {
		return nil, tokens.ErrTableNotFound
	}
	return f.GetTable(ctx, q, f.table.Key)
}

func (f *fakeTokens) Block(_ context.Context, _ tokens.Querier, _ uuid.UUID, number int, at time.Time) error {
	_, err := f.move(number, tokens.StatusOpen, tokens.StatusBlocked, tokens.ErrInvalidTransition)
	if err == nil {
		f.mu.Lock()
		f.blockedAt = at
		f.mu.Unlock()
	}
	return err
}

func (f *fakeTokens) Book(_ context.Context, _ tokens.Querier, _ uuid.UUID, number int, _ time.Time) (tokens.Token, error) {
	return f.move(number, tokens.StatusBlocked, tokens.StatusBooked, tokens.ErrNotBlocked)
}

func (f *fakeTokens) MarkVisited(_ context.Context, _ tokens.Querier, _ uuid.UUID, number int, _ time.Time) error {
	_, err := f.move(number, tokens.StatusBooked, tokens.StatusVisited, tokens.ErrInvalidTransition)
	return err
}

func (f *fakeTokens) Reopen(_ context.Context, _ tokens.Querier, _ uuid.UUID, number int, _ time.Time) error {
	_, err := f.move(number, tokens.StatusBooked, tokens.StatusOpen, tokens.ErrInvalidTransition)
	return err
}

func (f *fakeTokens) CloseDay(_ context.Context, _ tokens.Querier, _ uuid.UUID, _ time.Time) (tokens.DayChanges, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var changes tokens.DayChanges
	for i, tok := range f.table.Tokens {
		switch tok.Status {
		case tokens.StatusOpen, tokens.StatusBlocked:
			f.table.Tokens[i].Status = tokens.StatusClosed
			changes.Closed = append(changes.Closed, tok.Number)
		case tokens.StatusBooked:
			f.table.Tokens[i].Status = tokens.StatusCancelled
			changes.Cancelled = append(changes.Cancelled, tok.Number)
		}
	}
	return changes, nil
}

func (f *fakeTokens) ForceRelease(_ context.Context, _ tokens.Querier, _ uuid.UUID, number int) error {
	_, err := f.move(number, tokens.StatusBlocked, tokens.StatusOpen, tokens.ErrNotBlocked)
	return err
}

type fakeReleaser struct {
	mu    sync.Mutex
	refs  []tokens.Ref
	armed []time.Time
	err   error
}

func (r *fakeReleaser) Arm(_ context.Context, ref tokens.Ref, blockedAt time.Time) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return time.Time{}, r.err
	}
	r.refs = append(r.refs, ref)
	r.armed = append(r.armed, blockedAt)
	return blockedAt.Add(time.Minute), nil
}

type recordedEvent struct {
	eventType string
	n         notify.Notification
}

type fakeOutbox struct {
	events []recordedEvent
}

func (o *fakeOutbox) Insert(_ context.Context, q events.Querier, _ string, eventType string, payload any) (uuid.UUID, error) {
	if q == nil {
		return uuid.Nil, errors.New("outbox insert outside transaction")
	}
	o.events = append(o.events, recordedEvent{eventType: eventType, n: payload.(notify.Notification)})
	return uuid.New(), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []tokens.Status
}

func (p *fakePublisher) PublishToken(_ uuid.UUID, _ int, status tokens.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, status)
}

type fakeLocator struct{ point directory.GeoPoint }

func (l fakeLocator) HospitalLocation(context.Context, uuid.UUID) (directory.GeoPoint, error) {
	return l.point, nil
}

type harness struct {
	svc      *Service
	mock     pgxmock.PgxPoolIface
	tokens   *fakeTokens
	releaser *fakeReleaser
	outbox   *fakeOutbox
	pub      *fakePublisher
}

func newHarness(t *testing.T, statuses ...tokens.Status) *harness {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	h := &harness{
		mock:     mock,
		tokens:   newFakeTokens(statuses...),
		releaser: &fakeReleaser{},
		outbox:   &fakeOutbox{},
		pub:      &fakePublisher{},
	}
	seq := sequence.NewGenerator(sequence.NewMemoryStore(), nil)
	h.svc = NewService(mock, h.tokens, NewRepository(mock), seq, availability.New(ist, 4*time.Hour), nil).
		WithReleaser(h.releaser).
		WithOutbox(h.outbox).
		WithPublisher(h.pub).
		WithClock(func() time.Time { return time.Date(2024, 7, 15, 8, 30, 0, 0, ist) })
	h.svc.newOTP = func() (int, error) { return 4321, nil }
	return h
}

func (h *harness) blockRequest(number int) BlockRequest {
	k := h.tokens.table.Key
	return BlockRequest{UserID: "u-1", DoctorID: k.DoctorID, ScheduleID: k.ScheduleID, Date: k.TokenDate, Number: number}
}

func (h *harness) bookRequest(number int) BookRequest {
	k := h.tokens.table.Key
	return BookRequest{UserID: "u-1", DoctorID: k.DoctorID, ScheduleID: k.ScheduleID, Date: k.TokenDate, Number: number}
}

var columns = []string{"booking_id", "user_id", "doctor_id", "schedule_id", "table_id", "token_date", "token",
	"start_time", "end_time", "latitude", "longitude", "distance_km", "start_ts", "end_ts", "booked_ts",
	"status", "visited_ts", "feedback_given", "rating", "suggestions"}

func (h *harness) bookingRows(id int64, number int, status Status) *pgxmock.Rows {
	k := h.tokens.table.Key
	snapshot := []byte(`{"number":` + string(rune('0'+number)) + `,"type":"NORMAL","time":"10:00"}`)
	now := time.Now()
	return pgxmock.NewRows(columns).AddRow(id, "u-1", k.DoctorID, k.ScheduleID, h.tokens.table.ID, k.TokenDate, snapshot,
		"10:00", "12:00", 0.0, 0.0, nil, now, now, now, string(status), nil, false, nil, nil)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestBlockFastTrackShortCircuits(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Block(context.Background(), BlockRequest{Number: 0, DoctorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Number)
	assert.Empty(t, h.releaser.refs)
	assert.Empty(t, h.pub.events)
}

func TestBlockArmsReleaseForStoredBlockInstant(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	h.svc.WithClock(func() time.Time { return time.Date(2024, 7, 15, 8, 30, 0, 123456789, ist) })

	_, err := h.svc.Block(context.Background(), h.blockRequest(1))
	require.NoError(t, err)
	require.Len(t, h.releaser.armed, 1)
	assert.Equal(t, h.tokens.blockedAt, h.releaser.armed[0])
	assert.Equal(t, 123456000, h.tokens.blockedAt.Nanosecond())
	assert.Equal(t, time.UTC, h.tokens.blockedAt.Location())
}

func TestBlockThenSecondBlockConflicts(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	ctx := context.Background()

	res, err := h.svc.Block(ctx, h.blockRequest(1))
	require.NoError(t, err)
	assert.Equal(t, tokens.StatusBlocked, h.tokens.status(1))
	assert.True(t, time.Date(2024, 7, 15, 8, 31, 0, 0, ist).Equal(res.ExpiresAt), "expires at %s", res.ExpiresAt)
	assert.Equal(t, []tokens.Ref{{TableID: h.tokens.table.ID, Number: 1}}, h.releaser.refs)

	_, err = h.svc.Block(ctx, h.blockRequest(1))
	assert.ErrorIs(t, err, tokens.ErrAlreadyBlocked)
	assert.Equal(t, KindConflict, Classify(err))
}

func TestConcurrentBlocksExactlyOneSucceeds(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Block(context.Background(), h.blockRequest(1))
			switch {
			case err == nil:
				wins.Add(1)
			case Classify(err) == KindConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(49), conflicts.Load())
}

func TestBlockOutsideWindow(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	h.svc.WithClock(func() time.Time { return time.Date(2024, 7, 15, 5, 0, 0, 0, ist) })

	_, err := h.svc.Block(context.Background(), h.blockRequest(1))
	assert.ErrorIs(t, err, ErrBookingClosed)
	assert.Equal(t, tokens.StatusOpen, h.tokens.status(1))
}

func TestBlockUnknownTableIsNotFound(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	req := h.blockRequest(1)
	req.ScheduleID = uuid.New()
	_, err := h.svc.Block(context.Background(), req)
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestBlockVelocityLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHarness(t, tokens.StatusOpen, tokens.StatusOpen)
	h.svc.WithLimiter(NewBlockLimiter(client, 1, 10*time.Minute, nil))

	_, err := h.svc.Block(context.Background(), h.blockRequest(1))
	require.NoError(t, err)
	_, err = h.svc.Block(context.Background(), h.blockRequest(2))
	assert.ErrorIs(t, err, ErrTooManyBlocks)
	assert.Equal(t, tokens.StatusOpen, h.tokens.status(2))
	assert.True(t, mr.Exists("velocity:block:u-1"))
}

func TestBlockLimiterWindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	l := NewBlockLimiter(client, 2, 10*time.Minute, nil)

	assert.True(t, l.Allow(ctx, "u-9"))
	assert.Equal(t, 10*time.Minute, mr.TTL("velocity:block:u-9"))
	assert.True(t, l.Allow(ctx, "u-9"))
	assert.False(t, l.Allow(ctx, "u-9"))
	// later increments keep the original window
	assert.Equal(t, 10*time.Minute, mr.TTL("velocity:block:u-9"))

	mr.FastForward(10*time.Minute + time.Second)
	assert.False(t, mr.Exists("velocity:block:u-9"))
	assert.True(t, l.Allow(ctx, "u-9"))
}

func TestBlockLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewBlockLimiter(client, 1, time.Minute, nil)
	mr.Close()

	assert.True(t, l.Allow(context.Background(), "u-9"))
	assert.True(t, l.Allow(context.Background(), "u-9"))
}

func TestBlockSurvivesArmFailure(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	h.releaser.err = errors.New("redis down")

	res, err := h.svc.Block(context.Background(), h.blockRequest(1))
	require.NoError(t, err)
	assert.True(t, res.ExpiresAt.IsZero())
	assert.Equal(t, tokens.StatusBlocked, h.tokens.status(1))
}

func TestBookWritesBookingOTPAndNotificationInOneTransaction(t *testing.T) {
	h := newHarness(t, tokens.StatusBlocked, tokens.StatusOpen)
	h.svc.WithLocator(fakeLocator{point: directory.GeoPoint{Latitude: 13.0827, Longitude: 80.2707}})
	table := h.tokens.table

	windowStart := time.Date(2024, 7, 15, 10, 0, 0, 0, ist).Add(-4 * time.Hour)
	end := time.Date(2024, 7, 15, 12, 0, 0, 0, ist)

	h.mock.ExpectBegin()
	h.mock.ExpectExec("INSERT INTO bookings").
		WithArgs(int64(1), "u-1", table.Key.DoctorID, table.Key.ScheduleID, table.ID, table.Key.TokenDate,
			[]byte(`{"number":1,"type":"NORMAL","time":"10:00"}`), 1, "10:00", "12:00", 12.9716, 77.5946,
			pgxmock.AnyArg(), windowStart, end, pgxmock.AnyArg(), "BOOKED").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	h.mock.ExpectExec("INSERT INTO booking_otps").
		WithArgs(int64(1), 4321).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	h.mock.ExpectCommit()

	req := h.bookRequest(1)
	req.Location = directory.GeoPoint{Latitude: 12.9716, Longitude: 77.5946}
	id, err := h.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, tokens.StatusBooked, h.tokens.status(1))
	require.NoError(t, h.mock.ExpectationsWereMet())

	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, notify.EventBookingConfirmed, h.outbox.events[0].eventType)
	assert.Contains(t, h.outbox.events[0].n.Body, "4321")
	assert.Equal(t, []tokens.Status{tokens.StatusBooked}, h.pub.events)
}

func TestBookRejectsTokenThatIsNotBlocked(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()

	_, err := h.svc.Book(context.Background(), h.bookRequest(1))
	assert.ErrorIs(t, err, tokens.ErrNotBlocked)
	assert.Equal(t, KindConflict, Classify(err))
	assert.Empty(t, h.outbox.events)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBookFastTrackSkipsTokenTransition(t *testing.T) {
	h := newHarness(t, tokens.StatusBooked)
	h.mock.ExpectBegin()
	h.mock.ExpectExec("INSERT INTO bookings").
		WithArgs(int64(1), "u-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			[]byte(`{"number":0,"type":"FAST_TRACK","time":""}`), 0, "10:00", "12:00", 0.0, 0.0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "BOOKED").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	h.mock.ExpectExec("INSERT INTO booking_otps").WithArgs(int64(1), 4321).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	h.mock.ExpectCommit()

	_, err := h.svc.Book(context.Background(), h.bookRequest(0))
	require.NoError(t, err)
	assert.Equal(t, tokens.StatusBooked, h.tokens.status(1))
	assert.Empty(t, h.pub.events)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBookOTPFailureRollsBack(t *testing.T) {
	h := newHarness(t, tokens.StatusBlocked)
	h.mock.ExpectBegin()
	h.mock.ExpectExec("INSERT INTO bookings").WithArgs(anyArgs(17)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	h.mock.ExpectExec("INSERT INTO booking_otps").WithArgs(int64(1), 4321).WillReturnError(errors.New("connection reset"))
	h.mock.ExpectRollback()

	_, err := h.svc.Book(context.Background(), h.bookRequest(1))
	require.Error(t, err)
	assert.Empty(t, h.outbox.events)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestCancelVisitedBookingIsRejected(t *testing.T) {
	h := newHarness(t, tokens.StatusVisited)
	h.mock.ExpectBegin()
	h.mock.ExpectQuery("SELECT (.+) FROM bookings WHERE booking_id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(h.bookingRows(7, 1, StatusVisited))
	h.mock.ExpectRollback()

	err := h.svc.Cancel(context.Background(), 7, "u-1")
	assert.ErrorIs(t, err, ErrAlreadyVisited)
	assert.Equal(t, KindConflict, Classify(err))
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestCancelBookedBookingReopensToken(t *testing.T) {
	h := newHarness(t, tokens.StatusBooked)
	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FROM bookings WHERE booking_id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(h.bookingRows(7, 1, StatusBooked))
	h.mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(int64(7), "CANCELLED", (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	h.mock.ExpectExec("DELETE FROM booking_otps").
		WithArgs([]int64{7}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	h.mock.ExpectCommit()

	require.NoError(t, h.svc.Cancel(context.Background(), 7, "u-1"))
	assert.Equal(t, tokens.StatusOpen, h.tokens.status(1))
	assert.Equal(t, []tokens.Status{tokens.StatusOpen}, h.pub.events)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestCancelSomeoneElsesBooking(t *testing.T) {
	h := newHarness(t, tokens.StatusBooked)
	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(int64(7)).WillReturnRows(h.bookingRows(7, 1, StatusBooked))
	h.mock.ExpectRollback()

	err := h.svc.Cancel(context.Background(), 7, "u-2")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Equal(t, tokens.StatusBooked, h.tokens.status(1))
}

func TestVerifyOTP(t *testing.T) {
	t.Run("non numeric", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.VerifyOTP(context.Background(), 7, "12ab")
		assert.ErrorIs(t, err, ErrInvalidOTP)
		assert.Equal(t, KindValidation, Classify(err))
	})

	t.Run("incorrect", func(t *testing.T) {
		h := newHarness(t, tokens.StatusBooked)
		h.mock.ExpectQuery("SELECT otp FROM booking_otps").
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"otp"}).AddRow(4321))
		err := h.svc.VerifyOTP(context.Background(), 7, "1234")
		assert.ErrorIs(t, err, ErrIncorrectOTP)
		assert.Equal(t, tokens.StatusBooked, h.tokens.status(1))
	})

	t.Run("correct confirms the visit", func(t *testing.T) {
		h := newHarness(t, tokens.StatusBooked)
		h.mock.ExpectQuery("SELECT otp FROM booking_otps").
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"otp"}).AddRow(4321))
		h.mock.ExpectBegin()
		h.mock.ExpectQuery("FOR UPDATE").WithArgs(int64(7)).WillReturnRows(h.bookingRows(7, 1, StatusBooked))
		h.mock.ExpectExec("UPDATE bookings SET status").
			WithArgs(int64(7), "VISITED", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		h.mock.ExpectExec("DELETE FROM booking_otps").WithArgs([]int64{7}).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.VerifyOTP(context.Background(), 7, " 4321 "))
		assert.Equal(t, tokens.StatusVisited, h.tokens.status(1))
		require.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestConfirmVisitTwiceConflicts(t *testing.T) {
	h := newHarness(t, tokens.StatusVisited)
	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(int64(7)).WillReturnRows(h.bookingRows(7, 1, StatusVisited))
	h.mock.ExpectRollback()

	err := h.svc.ConfirmVisit(context.Background(), 7)
	assert.ErrorIs(t, err, ErrAlreadyVisited)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBlockScheduleForDayCancelsAndNotifies(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen, tokens.StatusBooked)
	tableID := h.tokens.table.ID

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("UPDATE bookings SET status = 'CANCELLED'").
		WithArgs(tableID).
		WillReturnRows(pgxmock.NewRows([]string{"booking_id", "user_id", "token_number"}).
			AddRow(int64(11), "u-1", 2).
			AddRow(int64(12), "u-5", 0))
	h.mock.ExpectExec("DELETE FROM booking_otps").
		WithArgs([]int64{11, 12}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	h.mock.ExpectCommit()

	closure, err := h.svc.BlockScheduleForDay(context.Background(), tableID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, closure.ClosedTokens)
	assert.Equal(t, []int{2}, closure.CancelledTokens)
	assert.Equal(t, []int64{11, 12}, closure.CancelledBookings)
	assert.Equal(t, tokens.StatusClosed, h.tokens.status(1))
	assert.Equal(t, tokens.StatusCancelled, h.tokens.status(2))

	require.Len(t, h.outbox.events, 2)
	assert.Equal(t, notify.EventBookingCancelled, h.outbox.events[0].eventType)
	assert.Equal(t, "u-5", h.outbox.events[1].n.UserID)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBlockScheduleForDayUnknownTable(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	_, err := h.svc.BlockScheduleForDay(context.Background(), uuid.New())
	assert.ErrorIs(t, err, tokens.ErrTableNotFound)
}

func TestDetailForDifferentDoctor(t *testing.T) {
	h := newHarness(t, tokens.StatusBooked)
	h.mock.ExpectQuery("FROM bookings WHERE booking_id").WithArgs(int64(7)).WillReturnRows(h.bookingRows(7, 1, StatusBooked))

	_, err := h.svc.Detail(context.Background(), uuid.New(), 7)
	assert.ErrorIs(t, err, ErrDifferentDoctor)
}

func TestSubmitFeedback(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.SubmitFeedback(context.Background(), 7, "u-1", 6, ""), ErrInvalidRating)

	h.mock.ExpectExec("UPDATE bookings SET feedback_given").
		WithArgs(int64(7), "u-1", 5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, h.svc.SubmitFeedback(context.Background(), 7, "u-1", 5, "friendly staff"))

	h.mock.ExpectExec("UPDATE bookings SET feedback_given").WithArgs(anyArgs(4)...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	h.mock.ExpectQuery("FROM bookings WHERE booking_id").WithArgs(int64(7)).WillReturnRows(h.bookingRows(7, 1, StatusBooked))
	assert.ErrorIs(t, h.svc.SubmitFeedback(context.Background(), 7, "u-1", 4, ""), ErrFeedbackNotAllowed)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestAdminRelease(t *testing.T) {
	h := newHarness(t, tokens.StatusBlocked, tokens.StatusOpen)
	require.NoError(t, h.svc.AdminRelease(context.Background(), h.tokens.table.ID, 1))
	assert.Equal(t, tokens.StatusOpen, h.tokens.status(1))
	assert.ErrorIs(t, h.svc.AdminRelease(context.Background(), h.tokens.table.ID, 2), tokens.ErrNotBlocked)
}

func TestAvailabilityMissingTableIsEmpty(t *testing.T) {
	h := newHarness(t, tokens.StatusOpen)
	view, err := h.svc.Availability(context.Background(), tokens.NewKey(uuid.New(), uuid.New(), time.Now()))
	require.NoError(t, err)
	assert.False(t, view.BookingOpen)
	assert.Empty(t, view.Tokens)

	view, err = h.svc.Availability(context.Background(), h.tokens.table.Key)
	require.NoError(t, err)
	assert.True(t, view.BookingOpen)
}
