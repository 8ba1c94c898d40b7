package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/booking"
	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/http/middleware"
	"github.com/ramurama/populardoctor-webapi/internal/schedules"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

var errBadRequest = errors.New("bad request")

// userMessages are the texts the apps show verbatim.
var userMessages = []struct {
	err error
	msg string
}{
	{booking.ErrIncorrectOTP, "Incorrect OTP entered."},
	{booking.ErrDifferentDoctor, "Appointment has been made for a different doctor."},
}

func userMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return err.Error()
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status, kind := classify(err)
	msg := userMessage(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err, "path", r.URL.Path)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		logger.Warn("dependency unavailable", "error", err, "path", r.URL.Path)
		msg = "service temporarily unavailable"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, schedules.ErrInvalidSchedule),
		errors.Is(err, schedules.ErrWeekdayMismatch),
		errors.Is(err, directory.ErrInvalidInput):
		return http.StatusBadRequest, booking.KindValidation.String()
	case errors.Is(err, schedules.ErrScheduleExists),
		errors.Is(err, schedules.ErrTokenNumberExists),
		errors.Is(err, directory.ErrDoctorExists),
		errors.Is(err, directory.ErrHospitalExists):
		return http.StatusConflict, booking.KindConflict.String()
	case errors.Is(err, schedules.ErrScheduleNotFound),
		errors.Is(err, schedules.ErrTokenNotFound),
		errors.Is(err, directory.ErrHospitalNotFound),
		errors.Is(err, directory.ErrUserNotFound):
		return http.StatusNotFound, booking.KindNotFound.String()
	}

	kind := booking.Classify(err)
	switch kind {
	case booking.KindConflict:
		return http.StatusConflict, kind.String()
	case booking.KindNotFound:
		return http.StatusNotFound, kind.String()
	case booking.KindValidation:
		return http.StatusBadRequest, kind.String()
	case booking.KindTransient:
		return http.StatusServiceUnavailable, kind.String()
	}
	return http.StatusInternalServerError, kind.String()
}

func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, 64<<10)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json body", errBadRequest)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func intParam(r *http.Request, name string) (int64, error) {
	n, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return n, nil
}

func parseDate(raw string) (time.Time, error) {
	d, err := tokens.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return d, nil
}

// dateQuery reads ?date=YYYY-MM-DD, falling back to def.
func dateQuery(r *http.Request, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return tokens.DateOnly(def), nil
	}
	return parseDate(raw)
}

func callerID(r *http.Request) string {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

// callerDoctor resolves the doctor a doctor or front desk caller acts for.
func callerDoctor(r *http.Request) (uuid.UUID, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.DoctorID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// today is the calendar day in the pinned zone.
func today(loc *time.Location, now time.Time) time.Time {
	return tokens.DateOnly(now.In(loc))
}

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
