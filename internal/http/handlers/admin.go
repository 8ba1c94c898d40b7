package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/schedules"
	"github.com/ramurama/populardoctor-webapi/internal/scoring"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

type AdminSchedules interface {
	Create(ctx context.Context, in schedules.NewSchedule) (*schedules.Schedule, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	AddToken(ctx context.Context, id uuid.UUID, tok tokens.Token) (*schedules.Schedule, error)
	DeleteToken(ctx context.Context, id uuid.UUID, number int) (*schedules.Schedule, error)
}

type AdminDirectory interface {
	CreateDoctor(ctx context.Context, in directory.NewDoctor) (*directory.Doctor, error)
	CreateHospital(ctx context.Context, in directory.NewHospital) (*directory.Hospital, error)
}

type AdminReleaser interface {
	AdminRelease(ctx context.Context, tableID uuid.UUID, number int) error
}

type ScoringRunner interface {
	Run(ctx context.Context) (scoring.Summary, error)
}

// AdminHandler serves the back office.
type AdminHandler struct {
	schedules AdminSchedules
	directory AdminDirectory
	releaser  AdminReleaser
	scoring   ScoringRunner
	logger    *logging.Logger
	spawn     func(func())
}

func NewAdminHandler(sched AdminSchedules, dir AdminDirectory, releaser AdminReleaser, runner ScoringRunner, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		schedules: sched,
		directory: dir,
		releaser:  releaser,
		scoring:   runner,
		logger:    logger,
		spawn:     func(f func()) { go f() },
	}
}

// CreateSchedule handles POST /v1/admin/schedules.
func (h *AdminHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var in schedules.NewSchedule
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sc, err := h.schedules.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

// DeleteSchedule handles DELETE /v1/admin/schedules/{scheduleID}.
func (h *AdminHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "scheduleID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.schedules.SoftDelete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToken handles POST /v1/admin/schedules/{scheduleID}/tokens.
func (h *AdminHandler) AddToken(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "scheduleID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var tok tokens.Token
	if err := decode(r, &tok); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sc, err := h.schedules.AddToken(r.Context(), id, tok)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// DeleteToken handles DELETE /v1/admin/schedules/{scheduleID}/tokens/{number}.
func (h *AdminHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "scheduleID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	number, err := intParam(r, "number")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sc, err := h.schedules.DeleteToken(r.Context(), id, int(number))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// ReleaseToken handles POST /v1/admin/token-tables/{tableID}/tokens/{number}/release.
func (h *AdminHandler) ReleaseToken(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuidParam(r, "tableID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	number, err := intParam(r, "number")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.releaser.AdminRelease(r.Context(), tableID, int(number)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_number": number,
		"status":       tokens.StatusOpen,
	})
}

// CreateDoctor handles POST /v1/admin/doctors.
func (h *AdminHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var in directory.NewDoctor
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d, err := h.directory.CreateDoctor(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// CreateHospital handles POST /v1/admin/hospitals.
func (h *AdminHandler) CreateHospital(w http.ResponseWriter, r *http.Request) {
	var in directory.NewHospital
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	hosp, err := h.directory.CreateHospital(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, hosp)
}

// RunScoring handles POST /v1/admin/scoring/run. The run continues after the
// response is written.
func (h *AdminHandler) RunScoring(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	h.spawn(func() {
		if _, err := h.scoring.Run(ctx); err != nil {
			h.logger.Error("scoring run failed", "error", err)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
