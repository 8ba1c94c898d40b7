package directory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorExists     = errors.New("directory: doctor already exists")
	ErrHospitalExists   = errors.New("directory: hospital already exists")
	ErrHospitalNotFound = errors.New("directory: hospital not found")
	ErrUserNotFound     = errors.New("directory: user not found")
	ErrInvalidInput     = errors.New("directory: invalid input")
)

// Doctor is a registered practitioner. PDNumber is assigned on creation.
type Doctor struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	PDNumber       string    `json:"pd_number"`
	FullName       string    `json:"full_name"`
	Specialization string    `json:"specialization"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hospital is a place where schedules run.
type Hospital struct {
	ID        uuid.UUID `json:"id"`
	PDNumber  string    `json:"pd_number"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Point     GeoPoint  `json:"point"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is what notifications need to reach a user.
type Contact struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Mobile   string `json:"mobile"`
	Email    string `json:"email"`
}
