// Package sequence issues human-readable and numeric identifiers from
// per-kind counters. Every issued value is unique per kind even across
// concurrently running API instances.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

var sequenceTracer = otel.Tracer("populardoctor.sequence")

// Kind names a counter.
type Kind string

const (
	KindAutoNumber       Kind = "AutoNumber"
	KindDoctorPdNumber   Kind = "DoctorPdNumber"
	KindHospitalPdNumber Kind = "HospitalPdNumber"
)

// Seed is the first value issued for a kind that has never been used.
const Seed int64 = 1

var (
	ErrUnknownKind = errors.New("sequence: unknown counter kind")
	ErrNoPrefix    = errors.New("sequence: kind has no pd prefix")
)

var pdPrefixes = map[Kind]string{
	KindDoctorPdNumber:   "DR",
	KindHospitalPdNumber: "HL",
}

// Valid reports whether k is a known counter.
func (k Kind) Valid() bool {
	switch k {
	case KindAutoNumber, KindDoctorPdNumber, KindHospitalPdNumber:
		return true
	}
	return false
}

// Store atomically advances a counter and returns the value it held before
// the increment.
type Store interface {
	Increment(ctx context.Context, kind Kind) (int64, error)
}

// Generator hands out identifiers.
type Generator struct {
	store  Store
	logger *logging.Logger
}

func NewGenerator(store Store, logger *logging.Logger) *Generator {
	if store == nil {
		panic("sequence: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{store: store, logger: logger}
}

// Next returns the current counter value and advances the stored counter by one.
func (g *Generator) Next(ctx context.Context, kind Kind) (int64, error) {
	ctx, span := sequenceTracer.Start(ctx, "sequence.next")
	defer span.End()
	span.SetAttributes(attribute.String("sequence.kind", string(kind)))

	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	n, err := g.store.Increment(ctx, kind)
	if err != nil {
		g.logger.Error("sequence increment failed", "kind", kind, "error", err)
		return 0, fmt.Errorf("sequence: next %s: %w", kind, err)
	}
	span.SetAttributes(attribute.Int64("sequence.value", n))
	return n, nil
}

// NextPD returns a prefixed PD number such as "DR12" or "HL7".
func (g *Generator) NextPD(ctx context.Context, kind Kind) (string, error) {
	prefix, ok := pdPrefixes[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoPrefix, kind)
	}
	n, err := g.Next(ctx, kind)
	if err != nil {
		return "", err
	}
	return FormatPD(prefix, n), nil
}

// FormatPD joins a prefix and a counter value.
func FormatPD(prefix string, n int64) string {
	return prefix + strconv.FormatInt(n, 10)
}
