package tokens

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDropsStatus(t *testing.T) {
	tok := Token{Number: 3, Type: "NORMAL", Time: "10:15", Status: StatusBooked}
	data, err := json.Marshal(tok.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"number":3,"type":"NORMAL","time":"10:15"}`, string(data))
	assert.Equal(t, StatusBooked, tok.Status, "snapshot must not mutate the token")
}

func TestNewKeyTruncatesDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	doctor, schedule := uuid.New(), uuid.New()
	k1 := NewKey(doctor, schedule, time.Date(2024, 3, 9, 23, 30, 0, 0, loc))
	k2 := NewKey(doctor, schedule, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, k1, k2)
	assert.Contains(t, k1.String(), "2024-03-09")
}

func TestTableHelpers(t *testing.T) {
	table := &Table{Tokens: []Token{
		{Number: 1, Status: StatusClosed},
		{Number: 2, Status: StatusBooked},
	}}
	tok, ok := table.Find(2)
	require.True(t, ok)
	assert.Equal(t, StatusBooked, tok.Status)
	_, ok = table.Find(9)
	assert.False(t, ok)
	assert.True(t, table.HasStatus(StatusOpen, StatusBooked))
	assert.False(t, table.HasStatus(StatusOpen))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-05-01 ")
	require.NoError(t, err)
	assert.Equal(t, time.May, d.Month())
	_, err = ParseDate("01-05-2024")
	assert.Error(t, err)
}
