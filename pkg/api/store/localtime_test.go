package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocalDateTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "canonical", input: "2024-01-01T10:05:00", want: want},
		{name: "minutes only", input: "2024-01-01T10:05", want: want},
		{name: "space separated", input: "2024-01-01 10:05:00", want: want},
		{name: "fractional seconds", input: "2024-01-01T10:05:00.250", want: want.Add(250 * time.Millisecond)},
		{name: "zoned keeps wall clock", input: "2024-01-01T10:05:00+02:00", want: want},
		{name: "utc designator", input: "2024-01-01T10:05:00Z", want: want},
		{name: "driver format", input: "2024-01-01 10:05:00+00:00", want: want},
		{name: "empty", input: "", want: time.Time{}},
		{name: "whitespace", input: "   ", want: time.Time{}},
		{name: "garbage", input: "yesterday", wantErr: true},
		{name: "date only", input: "2024-01-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocalDateTime(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Time), "got %s", got.Time)
		})
	}
}

func TestLocalDateTime_JSON(t *testing.T) {
	type payload struct {
		At LocalDateTime `json:"at"`
	}

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"at":"2024-01-01T10:00:00"}`), &p))
	assert.Equal(t, "2024-01-01T10:00:00", p.At.String())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2024-01-01T10:00:00"}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &p))
	assert.True(t, p.At.IsZero())

	out, err = json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"at":12}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"at":"not a time"}`), &p))
}

func TestLocalDateTime_Scan(t *testing.T) {
	want := NewLocalDateTime(time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC))
	berlin := time.FixedZone("CET", 3600)

	tests := []struct {
		name string
		src  any
		want LocalDateTime
	}{
		{name: "nil", src: nil, want: LocalDateTime{}},
		{name: "time", src: time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC), want: want},
		{name: "zoned time", src: time.Date(2024, 3, 9, 8, 7, 6, 0, berlin), want: want},
		{name: "string", src: "2024-03-09 08:07:06", want: want},
		{name: "bytes", src: []byte("2024-03-09T08:07:06"), want: want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got LocalDateTime
			require.NoError(t, got.Scan(tt.src))
			assert.Equal(t, tt.want, got)
		})
	}

	var l LocalDateTime
	assert.Error(t, l.Scan(42))
}

func TestLocalDateTime_Value(t *testing.T) {
	v, err := LocalDateTime{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	at := NewLocalDateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	v, err = at.Value()
	require.NoError(t, err)
	assert.Equal(t, at.Time, v)
}

func TestRun_Elapsed(t *testing.T) {
	start := NewLocalDateTime(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	end := NewLocalDateTime(time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC))

	assert.Equal(t, 5*time.Minute, (&Run{TimeStart: start, TimeEnd: end}).Elapsed())
	assert.Equal(t, -5*time.Minute, (&Run{TimeStart: end, TimeEnd: start}).Elapsed())
	assert.Zero(t, (&Run{TimeStart: start}).Elapsed())
}
