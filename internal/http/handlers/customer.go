package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/booking"
	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/history"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// CustomerBookings is the booking workflow as customers drive it.
type CustomerBookings interface {
	Availability(ctx context.Context, key tokens.Key) (booking.TableView, error)
	Block(ctx context.Context, req booking.BlockRequest) (booking.BlockResult, error)
	Book(ctx context.Context, req booking.BookRequest) (int64, error)
	Cancel(ctx context.Context, bookingID int64, userID string) error
	SubmitFeedback(ctx context.Context, bookingID int64, userID string, rating int, suggestions string) error
}

// CustomerHistory reads a customer's bookings.
type CustomerHistory interface {
	CustomerHistory(ctx context.Context, userID string, today time.Time) (history.Customer, error)
}

// CustomerHandler serves the customer app.
type CustomerHandler struct {
	bookings CustomerBookings
	history  CustomerHistory
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
}

func NewCustomerHandler(bookings CustomerBookings, hist CustomerHistory, loc *time.Location, logger *logging.Logger) *CustomerHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CustomerHandler{bookings: bookings, history: hist, loc: loc, now: time.Now, logger: logger}
}

// TokenTable handles GET /v1/token-tables/{doctorID}/{scheduleID}/{date}.
func (h *CustomerHandler) TokenTable(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuidParam(r, "doctorID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	scheduleID, err := uuidParam(r, "scheduleID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	date, err := parseDate(chiParam(r, "date"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.bookings.Availability(r.Context(), tokens.NewKey(doctorID, scheduleID, date))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type tokenRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduleID  uuid.UUID `json:"schedule_id"`
	TokenDate   string    `json:"token_date"`
	TokenNumber *int      `json:"token_number"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
}

func (req tokenRequest) validate() (time.Time, error) {
	if req.DoctorID == uuid.Nil || req.ScheduleID == uuid.Nil || req.TokenNumber == nil {
		return time.Time{}, fmt.Errorf("%w: doctor_id, schedule_id and token_number are required", errBadRequest)
	}
	return parseDate(req.TokenDate)
}

// Block handles POST /v1/tokens/block.
func (h *CustomerHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	date, err := req.validate()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.bookings.Block(r.Context(), booking.BlockRequest{
		UserID:     callerID(r),
		DoctorID:   req.DoctorID,
		ScheduleID: req.ScheduleID,
		Date:       date,
		Number:     *req.TokenNumber,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Book handles POST /v1/bookings.
func (h *CustomerHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	date, err := req.validate()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := h.bookings.Book(r.Context(), booking.BookRequest{
		UserID:     callerID(r),
		DoctorID:   req.DoctorID,
		ScheduleID: req.ScheduleID,
		Date:       date,
		Number:     *req.TokenNumber,
		Location:   directory.GeoPoint{Latitude: req.Latitude, Longitude: req.Longitude},
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"booking_id": id})
}

// Cancel handles POST /v1/bookings/{bookingID}/cancel.
func (h *CustomerHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "bookingID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.bookings.Cancel(r.Context(), id, callerID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(booking.StatusCancelled)})
}

type feedbackRequest struct {
	Rating      int    `json:"rating"`
	Suggestions string `json:"suggestions"`
}

// Feedback handles POST /v1/bookings/{bookingID}/feedback.
func (h *CustomerHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "bookingID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req feedbackRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.bookings.SubmitFeedback(r.Context(), id, callerID(r), req.Rating, req.Suggestions); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /v1/bookings/history.
func (h *CustomerHandler) History(w http.ResponseWriter, r *http.Request) {
	out, err := h.history.CustomerHistory(r.Context(), callerID(r), today(h.loc, h.now()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
