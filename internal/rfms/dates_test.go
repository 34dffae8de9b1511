// internal/rfms/dates_test.go
package rfms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteDate_AllEncodingsCanonicalize(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// The same calendar day in every encoding RFMS is known to emit.
	inputs := []string{
		"20240115",
		"01-15-2024",
		"2024-01-15",
		"2024-01-15T09:30:00Z",
		"2024-01-15T09:30:00",
		"2024-01-15 09:30:00",
	}
	for _, in := range inputs {
		got, err := ParseRemoteDate(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestParseRemoteDate_DiscardsTimePortion(t *testing.T) {
	got, err := ParseRemoteDate("2024-06-30T23:59:59Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseRemoteDate_Unparseable(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-date", "31-31-2024", "15/01/2024"} {
		_, err := ParseRemoteDate(in)
		require.Error(t, err, "input %q", in)
		var dateErr *UnparseableDateError
		assert.ErrorAs(t, err, &dateErr, "input %q", in)
	}
}
