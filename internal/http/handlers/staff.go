package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/booking"
	"github.com/ramurama/populardoctor-webapi/internal/history"
	"github.com/ramurama/populardoctor-webapi/internal/schedules"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// StaffBookings is the workflow as doctors and front desks drive it.
type StaffBookings interface {
	Detail(ctx context.Context, doctorID uuid.UUID, bookingID int64) (*booking.Booking, error)
	ConfirmVisit(ctx context.Context, bookingID int64) error
	VerifyOTP(ctx context.Context, bookingID int64, rawOTP string) error
	BlockScheduleForDay(ctx context.Context, tableID uuid.UUID) (booking.DayClosure, error)
}

// StaffSchedules confirms schedule days.
type StaffSchedules interface {
	ConfirmDay(ctx context.Context, doctorID, scheduleID uuid.UUID, date time.Time) (*tokens.Table, error)
	PendingConfirmations(ctx context.Context, doctorID uuid.UUID, date time.Time) (schedules.Pending, error)
}

// StaffHistory reads a doctor's day.
type StaffHistory interface {
	TodaysBookings(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]history.Entry, error)
	ConfirmedSchedules(ctx context.Context, doctorID uuid.UUID, date, now time.Time) ([]history.ConfirmedSchedule, error)
}

// StaffHandler serves doctors and front desk staff. Every route acts for the
// doctor named in the caller's token.
type StaffHandler struct {
	bookings  StaffBookings
	schedules StaffSchedules
	history   StaffHistory
	loc       *time.Location
	now       func() time.Time
	logger    *logging.Logger
}

func NewStaffHandler(bookings StaffBookings, sched StaffSchedules, hist StaffHistory, loc *time.Location, logger *logging.Logger) *StaffHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StaffHandler{bookings: bookings, schedules: sched, history: hist, loc: loc, now: time.Now, logger: logger}
}

func (h *StaffHandler) doctor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := callerDoctor(r)
	if !ok {
		http.Error(w, "caller is not linked to a doctor", http.StatusForbidden)
	}
	return id, ok
}

type confirmRequest struct {
	TokenDate string `json:"token_date"`
}

// ConfirmSchedule handles POST /v1/schedules/{scheduleID}/confirm.
func (h *StaffHandler) ConfirmSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctor(w, r)
	if !ok {
		return
	}
	scheduleID, err := uuidParam(r, "scheduleID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	date, err := parseDate(req.TokenDate)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	table, err := h.schedules.ConfirmDay(r.Context(), doctorID, scheduleID, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token_table_id": table.ID,
		"token_date":     table.Key.TokenDate.Format(time.DateOnly),
		"tokens":         table.Tokens,
	})
}

// PendingConfirmations handles GET /v1/schedules/pending-confirmations.
// Without ?date it lists tomorrow's.
func (h *StaffHandler) PendingConfirmations(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctor(w, r)
	if !ok {
		return
	}
	date, err := dateQuery(r, today(h.loc, h.now()).AddDate(0, 0, 1))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.schedules.PendingConfirmations(r.Context(), doctorID, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ConfirmedSchedules handles GET /v1/schedules/confirmed.
func (h *StaffHandler) ConfirmedSchedules(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctor(w, r)
	if !ok {
		return
	}
	now := h.now()
	date, err := dateQuery(r, today(h.loc, now))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.history.ConfirmedSchedules(r.Context(), doctorID, date, now)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Today handles GET /v1/bookings/today.
func (h *StaffHandler) Today(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctor(w, r)
	if !ok {
		return
	}
	date, err := dateQuery(r, today(h.loc, h.now()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.history.TodaysBookings(r.Context(), doctorID, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Detail handles GET /v1/bookings/{bookingID}.
func (h *StaffHandler) Detail(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctor(w, r)
	if !ok {
		return
	}
	id, err := intParam(r, "bookingID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.bookings.Detail(r.Context(), doctorID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Visit handles POST /v1/bookings/{bookingID}/visit.
func (h *StaffHandler) Visit(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "bookingID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.bookings.ConfirmVisit(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(booking.StatusVisited)})
}

// otpRequest accepts the code as a JSON number or string.
type otpRequest struct {
	OTP json.RawMessage `json:"otp"`
}

func (o otpRequest) code() string {
	var s string
	if err := json.Unmarshal(o.OTP, &s); err == nil {
		return s
	}
	return string(o.OTP)
}

// VerifyOTP handles POST /v1/bookings/{bookingID}/verify-otp.
func (h *StaffHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "bookingID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req otpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(req.OTP) == 0 {
		writeError(w, r, h.logger, fmt.Errorf("%w: otp is required", errBadRequest))
		return
	}
	if err := h.bookings.VerifyOTP(r.Context(), id, req.code()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(booking.StatusVisited)})
}

// CloseDay handles POST /v1/token-tables/{tableID}/close.
func (h *StaffHandler) CloseDay(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuidParam(r, "tableID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	closure, err := h.bookings.BlockScheduleForDay(r.Context(), tableID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, closure)
}
