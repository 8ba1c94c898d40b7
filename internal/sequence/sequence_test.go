package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreReturnsPreIncrementValue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO sequence_counters").
		WithArgs("AutoNumber", int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"issued"}).AddRow(int64(41)))

	gen := NewGenerator(NewPostgresStore(mock), nil)
	n, err := gen.Next(context.Background(), KindAutoNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(41), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreErrorIsRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery("INSERT INTO sequence_counters").
		WithArgs("DoctorPdNumber", int64(2)).
		WillReturnError(boom)

	gen := NewGenerator(NewPostgresStore(mock), nil)
	_, err = gen.NextPD(context.Background(), KindDoctorPdNumber)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextPDFormatsPrefix(t *testing.T) {
	gen := NewGenerator(NewMemoryStore(), nil)
	ctx := context.Background()

	first, err := gen.NextPD(ctx, KindDoctorPdNumber)
	require.NoError(t, err)
	second, err := gen.NextPD(ctx, KindDoctorPdNumber)
	require.NoError(t, err)
	hospital, err := gen.NextPD(ctx, KindHospitalPdNumber)
	require.NoError(t, err)

	assert.Equal(t, "DR1", first)
	assert.Equal(t, "DR2", second)
	assert.Equal(t, "HL1", hospital)

	_, err = gen.NextPD(ctx, KindAutoNumber)
	assert.ErrorIs(t, err, ErrNoPrefix)
}

func TestNextRejectsUnknownKind(t *testing.T) {
	gen := NewGenerator(NewMemoryStore(), nil)
	_, err := gen.Next(context.Background(), Kind("Invoice"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestMemoryStoreConcurrentCallersGetDistinctValues(t *testing.T) {
	gen := NewGenerator(NewMemoryStore(), nil)
	const callers = 200

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := gen.Next(context.Background(), KindAutoNumber)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, callers)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, n := range got {
		assert.Equal(t, Seed+int64(i), n, "values must be gapless and unique")
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Increment(ctx, KindAutoNumber)
	assert.ErrorIs(t, err, context.Canceled)
}
