package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/sequence"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// PDAllocator hands out formatted PD numbers.
type PDAllocator interface {
	NextPD(ctx context.Context, kind sequence.Kind) (string, error)
}

// Service registers doctors and hospitals under sequential PD numbers.
type Service struct {
	store  *Store
	pd     PDAllocator
	logger *logging.Logger
}

func NewService(store *Store, pd PDAllocator, logger *logging.Logger) *Service {
	if store == nil || pd == nil {
		panic("directory: store and pd allocator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, pd: pd, logger: logger}
}

// NewDoctor is the input for CreateDoctor.
type NewDoctor struct {
	UserID         string `json:"user_id"`
	FullName       string `json:"full_name"`
	Specialization string `json:"specialization"`
}

// NewHospital is the input for CreateHospital.
type NewHospital struct {
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Service) CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("%w: user_id and full_name are required", ErrInvalidInput)
	}
	pd, err := s.pd.NextPD(ctx, sequence.KindDoctorPdNumber)
	if err != nil {
		return nil, fmt.Errorf("directory: allocate doctor pd number: %w", err)
	}
	d := &Doctor{
		ID:             uuid.New(),
		UserID:         strings.TrimSpace(in.UserID),
		PDNumber:       pd,
		FullName:       strings.TrimSpace(in.FullName),
		Specialization: strings.TrimSpace(in.Specialization),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("doctor registered", "doctor_id", d.ID, "pd_number", d.PDNumber)
	return d, nil
}

func (s *Service) CreateHospital(ctx context.Context, in NewHospital) (*Hospital, error) {
	point := GeoPoint{Latitude: in.Latitude, Longitude: in.Longitude}
	if strings.TrimSpace(in.Name) == "" || !point.Valid() {
		return nil, fmt.Errorf("%w: name and valid coordinates are required", ErrInvalidInput)
	}
	pd, err := s.pd.NextPD(ctx, sequence.KindHospitalPdNumber)
	if err != nil {
		return nil, fmt.Errorf("directory: allocate hospital pd number: %w", err)
	}
	h := &Hospital{
		ID:        uuid.New(),
		PDNumber:  pd,
		Name:      strings.TrimSpace(in.Name),
		Location:  strings.TrimSpace(in.Location),
		Point:     point,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertHospital(ctx, h); err != nil {
		return nil, err
	}
	s.logger.Info("hospital registered", "hospital_id", h.ID, "pd_number", h.PDNumber)
	return h, nil
}

func (s *Service) HospitalLocation(ctx context.Context, scheduleID uuid.UUID) (GeoPoint, error) {
	return s.store.HospitalLocation(ctx, scheduleID)
}

func (s *Service) UserContact(ctx context.Context, userID string) (Contact, error) {
	return s.store.UserContact(ctx, userID)
}
