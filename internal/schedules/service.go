// Package schedules manages weekly schedule templates and their daily
// confirmation into token tables.
package schedules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ramurama/populardoctor-webapi/internal/availability"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TableCreator instantiates token tables.
type TableCreator interface {
	CreateTable(ctx context.Context, q tokens.Querier, in tokens.NewTable) (*tokens.Table, error)
}

type Service struct {
	db     TxBeginner
	store  *Store
	tables TableCreator
	cache  *Cache
	logger *logging.Logger
}

func NewService(db TxBeginner, store *Store, tables TableCreator, cache *Cache, logger *logging.Logger) *Service {
	if db == nil || store == nil || tables == nil {
		panic("schedules: db, store and table creator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, store: store, tables: tables, cache: cache, logger: logger.WithComponent("schedules")}
}

// Create validates and stores a new template. A live schedule with the same
// doctor, hospital, weekday and times yields ErrScheduleExists.
func (s *Service) Create(ctx context.Context, in NewSchedule) (*Schedule, error) {
	weekday, ok := NormalizeWeekday(in.Weekday)
	if !ok {
		return nil, fmt.Errorf("%w: weekday %q", ErrInvalidSchedule, in.Weekday)
	}
	start, err := availability.ParseClock(in.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := availability.ParseClock(in.EndTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("%w: end must follow start", ErrInvalidSchedule)
	}
	toks, err := normalizeTokens(in.Tokens)
	if err != nil {
		return nil, err
	}

	sc := &Schedule{
		ID:              uuid.New(),
		DoctorID:        in.DoctorID,
		HospitalID:      in.HospitalID,
		FrontdeskUserID: in.FrontdeskUserID,
		Weekday:         weekday,
		StartTime:       start,
		EndTime:         end,
		Tokens:          toks,
	}
	if err := s.store.Insert(ctx, nil, sc); err != nil {
		return nil, err
	}
	s.logger.Info("schedule created", "schedule_id", sc.ID, "doctor_id", sc.DoctorID, "weekday", sc.Weekday)
	return sc, nil
}

func normalizeTokens(in []tokens.Token) ([]tokens.Token, error) {
	seen := make(map[int]bool, len(in))
	out := make([]tokens.Token, 0, len(in))
	for _, t := range in {
		if t.Number < 0 {
			return nil, fmt.Errorf("%w: token number %d", ErrInvalidSchedule, t.Number)
		}
		if seen[t.Number] {
			return nil, ErrTokenNumberExists
		}
		seen[t.Number] = true
		out = append(out, t.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	if sc, ok := s.cache.Get(id); ok {
		return sc, nil
	}
	sc, err := s.store.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	s.cache.Put(sc)
	return sc, nil
}

func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDelete(ctx, nil, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	s.logger.Info("schedule deleted", "schedule_id", id)
	return nil
}

// AddToken appends a token to the template. Existing token tables are not
// affected.
func (s *Service) AddToken(ctx context.Context, id uuid.UUID, tok tokens.Token) (*Schedule, error) {
	if tok.Number < 0 {
		return nil, fmt.Errorf("%w: token number %d", ErrInvalidSchedule, tok.Number)
	}
	return s.editTokens(ctx, id, func(toks []tokens.Token) ([]tokens.Token, error) {
		for _, t := range toks {
			if t.Number == tok.Number {
				return nil, ErrTokenNumberExists
			}
		}
		toks = append(toks, tok.Snapshot())
		sort.Slice(toks, func(i, j int) bool { return toks[i].Number < toks[j].Number })
		return toks, nil
	})
}

func (s *Service) DeleteToken(ctx context.Context, id uuid.UUID, number int) (*Schedule, error) {
	return s.editTokens(ctx, id, func(toks []tokens.Token) ([]tokens.Token, error) {
		for i, t := range toks {
			if t.Number == number {
				return append(toks[:i], toks[i+1:]...), nil
			}
		}
		return nil, ErrTokenNotFound
	})
}

func (s *Service) editTokens(ctx context.Context, id uuid.UUID, edit func([]tokens.Token) ([]tokens.Token, error)) (*Schedule, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedules: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sc, err := s.store.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sc.IsDeleted {
		return nil, ErrScheduleNotFound
	}
	toks, err := edit(sc.Tokens)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetTokens(ctx, tx, id, toks); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("schedules: commit: %w", err)
	}
	sc.Tokens = toks
	s.cache.Invalidate(id)
	return sc, nil
}

// ListForWeekday returns a doctor's live schedules for a weekday.
func (s *Service) ListForWeekday(ctx context.Context, doctorID uuid.UUID, weekday string) ([]Schedule, error) {
	day, ok := NormalizeWeekday(weekday)
	if !ok {
		return nil, fmt.Errorf("%w: weekday %q", ErrInvalidSchedule, weekday)
	}
	return s.store.ListForWeekday(ctx, nil, doctorID, day)
}

// ConfirmDay instantiates the schedule's token table for date with every
// token OPEN.
func (s *Service) ConfirmDay(ctx context.Context, doctorID, scheduleID uuid.UUID, date time.Time) (*tokens.Table, error) {
	sc, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sc.IsDeleted || sc.DoctorID != doctorID {
		return nil, ErrScheduleNotFound
	}
	if WeekdayName(date) != sc.Weekday {
		return nil, ErrWeekdayMismatch
	}
	table, err := s.tables.CreateTable(ctx, nil, tokens.NewTable{
		Key:       tokens.NewKey(doctorID, scheduleID, date),
		StartTime: sc.StartTime,
		EndTime:   sc.EndTime,
		Tokens:    sc.Tokens,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("schedule confirmed",
		"schedule_id", scheduleID,
		"doctor_id", doctorID,
		"token_date", table.Key.TokenDate.Format(time.DateOnly),
		"tokens", len(table.Tokens),
	)
	return table, nil
}

// PendingConfirmations lists the doctor's schedules for date's weekday that
// have no token table yet.
func (s *Service) PendingConfirmations(ctx context.Context, doctorID uuid.UUID, date time.Time) (Pending, error) {
	out := Pending{TokenDate: date.Format(time.DateOnly), Schedules: []Schedule{}}
	list, err := s.store.ListForWeekday(ctx, nil, doctorID, WeekdayName(date))
	if err != nil {
		return out, err
	}
	confirmed, err := s.store.ConfirmedOn(ctx, nil, doctorID, date)
	if err != nil {
		return out, err
	}
	for _, sc := range list {
		if !confirmed[sc.ID] {
			out.Schedules = append(out.Schedules, sc)
		}
	}
	return out, nil
}
