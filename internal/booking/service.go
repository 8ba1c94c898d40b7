package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramurama/populardoctor-webapi/internal/availability"
	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/events"
	"github.com/ramurama/populardoctor-webapi/internal/notify"
	"github.com/ramurama/populardoctor-webapi/internal/observability/metrics"
	"github.com/ramurama/populardoctor-webapi/internal/sequence"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

var bookingTracer = otel.Tracer("populardoctor.booking")

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TokenStore is the subset of tokens.Store the workflow drives.
type TokenStore interface {
	GetTable(ctx context.Context, q tokens.Querier, key tokens.Key) (*tokens.Table, error)
	GetTableByID(ctx context.Context, q tokens.Querier, id uuid.UUID) (*tokens.Table, error)
	Block(ctx context.Context, q tokens.Querier, tableID uuid.UUID, number int, at time.Time) error
	Book(ctx context.Context, q tokens.Querier, tableID uuid.UUID, number int, at time.Time) (tokens.Token, error)
	MarkVisited(ctx context.Context, q tokens.Querier, tableID uuid.UUID, number int, at time.Time) error
	Reopen(ctx context.Context, q tokens.Querier, tableID uuid.UUID, number int, at time.Time) error
	CloseDay(ctx context.Context, q tokens.Querier, tableID uuid.UUID, at time.Time) (tokens.DayChanges, error)
	ForceRelease(ctx context.Context, q tokens.Querier, tableID uuid.UUID, number int) error
}

// Sequencer allocates booking ids.
type Sequencer interface {
	Next(ctx context.Context, kind sequence.Kind) (int64, error)
}

// Releaser arms the automatic release of a blocked token.
type Releaser interface {
	Arm(ctx context.Context, ref tokens.Ref, blockedAt time.Time) (time.Time, error)
}

// Locator resolves the hospital a schedule runs at.
type Locator interface {
	HospitalLocation(ctx context.Context, scheduleID uuid.UUID) (directory.GeoPoint, error)
}

// Publisher broadcasts committed token transitions.
type Publisher interface {
	PublishToken(tableID uuid.UUID, number int, status tokens.Status)
}

// Outbox records events inside the caller's transaction.
type Outbox interface {
	Insert(ctx context.Context, q events.Querier, aggregate, eventType string, payload any) (uuid.UUID, error)
}

// Service runs the booking workflow: block, book, cancel, visit and day
// closure.
type Service struct {
	db       TxBeginner
	tokens   TokenStore
	repo     *Repository
	seq      Sequencer
	calc     *availability.Calculator
	logger   *logging.Logger
	releaser Releaser
	limiter  Limiter
	locator  Locator
	outbox   Outbox
	pub      Publisher
	metrics  *metrics.SchedulerMetrics
	now      func() time.Time
	newOTP   func() (int, error)
}

func NewService(db TxBeginner, tokenStore TokenStore, repo *Repository, seq Sequencer, calc *availability.Calculator, logger *logging.Logger) *Service {
	if db == nil || tokenStore == nil || repo == nil || seq == nil || calc == nil {
		panic("booking: db, token store, repository, sequencer and calculator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		db:     db,
		tokens: tokenStore,
		repo:   repo,
		seq:    seq,
		calc:   calc,
		logger: logger.WithComponent("booking"),
		now:    time.Now,
		newOTP: NewOTP,
	}
}

func (s *Service) WithReleaser(r Releaser) *Service                 { s.releaser = r; return s }
func (s *Service) WithLimiter(l Limiter) *Service                   { s.limiter = l; return s }
func (s *Service) WithLocator(l Locator) *Service                   { s.locator = l; return s }
func (s *Service) WithOutbox(o Outbox) *Service                     { s.outbox = o; return s }
func (s *Service) WithPublisher(p Publisher) *Service               { s.pub = p; return s }
func (s *Service) WithMetrics(m *metrics.SchedulerMetrics) *Service { s.metrics = m; return s }

// WithClock overrides the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) publish(tableID uuid.UUID, number int, status tokens.Status) {
	if s.pub != nil && number != tokens.FastTrackNumber {
		s.pub.PublishToken(tableID, number, status)
	}
}

func (s *Service) observe(op string, started time.Time) {
	s.metrics.ObserveLatency(op, time.Since(started).Seconds())
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}

// Availability returns the day's tokens and whether booking is open. A
// missing table reads as an empty, closed view.
func (s *Service) Availability(ctx context.Context, key tokens.Key) (TableView, error) {
	table, err := s.tokens.GetTable(ctx, nil, key)
	if err != nil {
		if errors.Is(err, tokens.ErrTableNotFound) {
			return TableView{Tokens: []tokens.Token{}}, nil
		}
		return TableView{}, err
	}
	return TableView{
		TableID:     table.ID,
		StartTime:   table.StartTime,
		EndTime:     table.EndTime,
		Tokens:      table.Tokens,
		BookingOpen: s.calc.IsBookingOpen(table, s.now()),
	}, nil
}

// Block holds a token for the customer until it is booked or released.
// Fast-track tokens succeed without touching the table.
func (s *Service) Block(ctx context.Context, req BlockRequest) (BlockResult, error) {
	started := time.Now()
	defer s.observe("block", started)
	ctx, span := bookingTracer.Start(ctx, "booking.block")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.doctor_id", req.DoctorID.String()),
		attribute.String("booking.schedule_id", req.ScheduleID.String()),
		attribute.Int("booking.token_number", req.Number),
	)

	if req.Number < 0 {
		return BlockResult{}, fmt.Errorf("%w: token number %d", ErrInvalidRequest, req.Number)
	}
	if req.Number == tokens.FastTrackNumber {
		s.metrics.ObserveBlock("fast_track")
		return BlockResult{Number: tokens.FastTrackNumber}, nil
	}

	table, err := s.tokens.GetTable(ctx, nil, tokens.NewKey(req.DoctorID, req.ScheduleID, req.Date))
	if err != nil {
		s.metrics.ObserveBlock("error")
		return BlockResult{}, fail(span, err)
	}
	now := s.now()
	if !s.calc.WithinWindow(table, now) {
		s.metrics.ObserveBlock("closed")
		return BlockResult{}, ErrBookingClosed
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, req.UserID) {
		s.metrics.ObserveBlock("throttled")
		return BlockResult{}, ErrTooManyBlocks
	}

	blockedAt := tokens.BlockInstant(now)
	if err := s.tokens.Block(ctx, nil, table.ID, req.Number, blockedAt); err != nil {
		if Classify(err) == KindConflict {
			s.metrics.ObserveBlock("conflict")
		} else {
			s.metrics.ObserveBlock("error")
		}
		return BlockResult{}, fail(span, err)
	}
	s.metrics.ObserveBlock("blocked")
	s.publish(table.ID, req.Number, tokens.StatusBlocked)

	result := BlockResult{TableID: table.ID, Number: req.Number}
	if s.releaser != nil {
		due, err := s.releaser.Arm(ctx, tokens.Ref{TableID: table.ID, Number: req.Number}, blockedAt)
		if err != nil {
			s.logger.Warn("release arm failed, sweep will recover", "error", err, "token_table_id", table.ID, "token_number", req.Number)
		} else {
			result.ExpiresAt = due
		}
	}
	s.logger.Info("token blocked", "token_table_id", table.ID, "token_number", req.Number, "user_id", req.UserID)
	return result, nil
}

// Book turns a blocked token into a booking. Token update, booking insert and
// OTP insert commit together. Callers must not retry blindly: a retry after
// an ambiguous failure may book a second token.
func (s *Service) Book(ctx context.Context, req BookRequest) (int64, error) {
	started := time.Now()
	defer s.observe("book", started)
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.doctor_id", req.DoctorID.String()),
		attribute.Int("booking.token_number", req.Number),
	)

	if strings.TrimSpace(req.UserID) == "" || req.Number < 0 {
		return 0, fmt.Errorf("%w: user and token number are required", ErrInvalidRequest)
	}

	table, err := s.tokens.GetTable(ctx, nil, tokens.NewKey(req.DoctorID, req.ScheduleID, req.Date))
	if err != nil {
		s.metrics.ObserveBooking("error")
		return 0, fail(span, err)
	}
	bounds, err := s.calc.Bounds(table.Key.TokenDate, table.StartTime, table.EndTime)
	if err != nil {
		return 0, fail(span, fmt.Errorf("booking: schedule times: %w", err))
	}
	distance := s.distance(ctx, req)
	otp, err := s.newOTP()
	if err != nil {
		return 0, fail(span, err)
	}

	id, err := s.book(ctx, req, table, bounds, distance, otp)
	if err != nil {
		if Classify(err) == KindConflict {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("error")
		}
		return 0, fail(span, err)
	}
	s.metrics.ObserveBooking("booked")
	s.publish(table.ID, req.Number, tokens.StatusBooked)
	span.SetAttributes(attribute.Int64("booking.id", id))
	s.logger.Info("token booked", "booking_id", id, "token_table_id", table.ID, "token_number", req.Number, "user_id", req.UserID)
	return id, nil
}

func (s *Service) book(ctx context.Context, req BookRequest, table *tokens.Table, bounds availability.Bounds, distance *float64, otp int) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("booking: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	tok := tokens.FastTrackToken()
	if req.Number != tokens.FastTrackNumber {
		if tok, err = s.tokens.Book(ctx, tx, table.ID, req.Number, now); err != nil {
			return 0, err
		}
	}

	id, err := s.seq.Next(ctx, sequence.KindAutoNumber)
	if err != nil {
		return 0, fmt.Errorf("booking: allocate booking id: %w", err)
	}

	b := &Booking{
		ID:         id,
		UserID:     req.UserID,
		DoctorID:   table.Key.DoctorID,
		ScheduleID: table.Key.ScheduleID,
		TableID:    table.ID,
		TokenDate:  table.Key.TokenDate,
		Token:      tok.Snapshot(),
		StartTime:  table.StartTime,
		EndTime:    table.EndTime,
		Location:   req.Location,
		DistanceKm: distance,
		StartTs:    bounds.WindowStart,
		EndTs:      bounds.End,
		BookedTs:   now,
		Status:     StatusBooked,
	}
	if err := s.repo.Insert(ctx, tx, b); err != nil {
		return 0, err
	}
	if err := s.repo.InsertOTP(ctx, tx, id, otp); err != nil {
		return 0, err
	}
	if s.outbox != nil {
		n := notify.Notification{
			UserID:    req.UserID,
			BookingID: id,
			Title:     "Booking confirmed",
			Body: fmt.Sprintf("Booking %d for token %d on %s at %s is confirmed. Share OTP %04d at the front desk.",
				id, tok.Number, b.TokenDate.Format(time.DateOnly), table.StartTime, otp),
		}
		if _, err := s.outbox.Insert(ctx, tx, "booking", notify.EventBookingConfirmed, n); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("booking: commit: %w", err)
	}
	return id, nil
}

// distance is best effort: an unknown hospital leaves it unset.
func (s *Service) distance(ctx context.Context, req BookRequest) *float64 {
	if s.locator == nil || !req.Location.Valid() || req.Location == (directory.GeoPoint{}) {
		return nil
	}
	hospital, err := s.locator.HospitalLocation(ctx, req.ScheduleID)
	if err != nil {
		s.logger.Warn("hospital location unavailable", "error", err, "schedule_id", req.ScheduleID)
		return nil
	}
	km := directory.DistanceKm(req.Location, hospital)
	return &km
}

// Cancel cancels a BOOKED booking and reopens its token. When userID is set
// only that user's booking can be cancelled.
func (s *Service) Cancel(ctx context.Context, bookingID int64, userID string) error {
	started := time.Now()
	defer s.observe("cancel", started)
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", bookingID))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("booking: begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	b, err := s.repo.GetForUpdate(ctx, tx, bookingID)
	if err != nil {
		return fail(span, err)
	}
	if userID != "" && b.UserID != userID {
		return ErrBookingNotFound
	}
	if err := checkBooked(b); err != nil {
		return err
	}
	if err := s.repo.MarkCancelled(ctx, tx, b.ID); err != nil {
		return fail(span, err)
	}
	if !b.IsFastTrack() {
		if err := s.tokens.Reopen(ctx, tx, b.TableID, b.Token.Number, s.now()); err != nil {
			return fail(span, err)
		}
	}
	if err := s.repo.DeleteOTPs(ctx, tx, b.ID); err != nil {
		return fail(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("booking: commit: %w", err))
	}

	s.metrics.ObserveCancellation("customer", 1)
	s.publish(b.TableID, b.Token.Number, tokens.StatusOpen)
	s.logger.Info("booking cancelled", "booking_id", b.ID, "token_number", b.Token.Number)
	return nil
}

// ConfirmVisit records that the customer was seen.
func (s *Service) ConfirmVisit(ctx context.Context, bookingID int64) error {
	return s.confirmVisit(ctx, bookingID, "direct")
}

// VerifyOTP checks the submitted code before confirming the visit.
func (s *Service) VerifyOTP(ctx context.Context, bookingID int64, rawOTP string) error {
	submitted, err := ParseOTP(rawOTP)
	if err != nil {
		return err
	}
	stored, err := s.repo.GetOTP(ctx, nil, bookingID)
	if err != nil {
		return err
	}
	if stored != submitted {
		s.logger.Info("incorrect otp", "booking_id", bookingID)
		return ErrIncorrectOTP
	}
	return s.confirmVisit(ctx, bookingID, "otp")
}

func (s *Service) confirmVisit(ctx context.Context, bookingID int64, method string) error {
	started := time.Now()
	defer s.observe("visit", started)
	ctx, span := bookingTracer.Start(ctx, "booking.confirm_visit")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", bookingID), attribute.String("booking.visit_method", method))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("booking: begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	b, err := s.repo.GetForUpdate(ctx, tx, bookingID)
	if err != nil {
		return fail(span, err)
	}
	if err := checkBooked(b); err != nil {
		return err
	}
	now := s.now()
	if err := s.repo.MarkVisited(ctx, tx, b.ID, now); err != nil {
		return fail(span, err)
	}
	if !b.IsFastTrack() {
		if err := s.tokens.MarkVisited(ctx, tx, b.TableID, b.Token.Number, now); err != nil {
			return fail(span, err)
		}
	}
	if err := s.repo.DeleteOTPs(ctx, tx, b.ID); err != nil {
		return fail(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("booking: commit: %w", err))
	}

	s.metrics.ObserveVisit(method)
	s.publish(b.TableID, b.Token.Number, tokens.StatusVisited)
	s.logger.Info("visit confirmed", "booking_id", b.ID, "method", method)
	return nil
}

func checkBooked(b *Booking) error {
	switch b.Status {
	case StatusVisited:
		return ErrAlreadyVisited
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	return nil
}

// BlockScheduleForDay closes what is left of a day: OPEN and BLOCKED tokens
// become CLOSED, BOOKED tokens and their bookings (fast-track included) are
// cancelled and each affected customer gets a notification.
func (s *Service) BlockScheduleForDay(ctx context.Context, tableID uuid.UUID) (DayClosure, error) {
	started := time.Now()
	defer s.observe("close_day", started)
	ctx, span := bookingTracer.Start(ctx, "booking.block_schedule_for_day")
	defer span.End()
	span.SetAttributes(attribute.String("booking.token_table_id", tableID.String()))

	table, err := s.tokens.GetTableByID(ctx, nil, tableID)
	if err != nil {
		return DayClosure{}, fail(span, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return DayClosure{}, fail(span, fmt.Errorf("booking: begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	changes, err := s.tokens.CloseDay(ctx, tx, tableID, s.now())
	if err != nil {
		return DayClosure{}, fail(span, err)
	}
	rows, err := s.repo.CancelForTable(ctx, tx, tableID)
	if err != nil {
		return DayClosure{}, fail(span, err)
	}
	ids := make([]int64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.ID)
	}
	if err := s.repo.DeleteOTPs(ctx, tx, ids...); err != nil {
		return DayClosure{}, fail(span, err)
	}
	if s.outbox != nil {
		date := table.Key.TokenDate.Format(time.DateOnly)
		for _, c := range rows {
			n := notify.Notification{
				UserID:    c.UserID,
				BookingID: c.ID,
				Title:     "Booking cancelled",
				Body:      fmt.Sprintf("The doctor is unavailable on %s. Booking %d has been cancelled.", date, c.ID),
			}
			if _, err := s.outbox.Insert(ctx, tx, "booking", notify.EventBookingCancelled, n); err != nil {
				return DayClosure{}, fail(span, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return DayClosure{}, fail(span, fmt.Errorf("booking: commit: %w", err))
	}

	closure := DayClosure{
		TableID:           tableID,
		ClosedTokens:      changes.Closed,
		CancelledTokens:   changes.Cancelled,
		CancelledBookings: ids,
	}
	s.metrics.ObserveCancellation("day_closed", len(ids))
	for _, n := range changes.Closed {
		s.publish(tableID, n, tokens.StatusClosed)
	}
	for _, n := range changes.Cancelled {
		s.publish(tableID, n, tokens.StatusCancelled)
	}
	s.logger.Info("schedule blocked for day", "token_table_id", tableID,
		"closed", len(changes.Closed), "cancelled_tokens", len(changes.Cancelled), "cancelled_bookings", len(ids))
	return closure, nil
}

// Detail returns a booking to the doctor it was made with.
func (s *Service) Detail(ctx context.Context, doctorID uuid.UUID, bookingID int64) (*Booking, error) {
	b, err := s.repo.Get(ctx, nil, bookingID)
	if err != nil {
		return nil, err
	}
	if b.DoctorID != doctorID {
		return nil, ErrDifferentDoctor
	}
	return b, nil
}

func (s *Service) Status(ctx context.Context, bookingID int64) (Status, error) {
	b, err := s.repo.Get(ctx, nil, bookingID)
	if err != nil {
		return "", err
	}
	return b.Status, nil
}

// SubmitFeedback rates a visited booking once.
func (s *Service) SubmitFeedback(ctx context.Context, bookingID int64, userID string, rating int, suggestions string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	ok, err := s.repo.SaveFeedback(ctx, nil, bookingID, userID, rating, strings.TrimSpace(suggestions))
	if err != nil || ok {
		return err
	}
	b, err := s.repo.Get(ctx, nil, bookingID)
	if err != nil {
		return err
	}
	switch {
	case b.UserID != userID:
		return ErrBookingNotFound
	case b.Status != StatusVisited:
		return ErrFeedbackNotAllowed
	default:
		return ErrFeedbackExists
	}
}

// AdminRelease reopens a BLOCKED token ahead of its timer.
func (s *Service) AdminRelease(ctx context.Context, tableID uuid.UUID, number int) error {
	if err := s.tokens.ForceRelease(ctx, nil, tableID, number); err != nil {
		return err
	}
	s.metrics.ObserveRelease("admin", 1)
	s.publish(tableID, number, tokens.StatusOpen)
	s.logger.Info("token released by admin", "token_table_id", tableID, "token_number", number)
	return nil
}
