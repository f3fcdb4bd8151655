package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveAppliedDate(t *testing.T) {
	t.Parallel()

	ref := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "days ago", in: "Applied 3d ago", want: ref.AddDate(0, 0, -3)},
		{name: "weeks ago", in: "2w ago", want: ref.AddDate(0, 0, -14)},
		{name: "months approximate to 30 days", in: "Applied 1m ago", want: ref.AddDate(0, 0, -30)},
		{name: "years approximate to 365 days", in: "1y ago", want: ref.AddDate(0, 0, -365)},
		{name: "no pattern", in: "no date info", want: ref},
		{name: "empty", in: "", want: ref},
		{name: "first match wins", in: "viewed 2d ago, applied 4w ago", want: ref.AddDate(0, 0, -2)},
		{name: "uppercase unit", in: "Applied 5D ago", want: ref.AddDate(0, 0, -5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAppliedDate(tt.in, ref))
		})
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.False(t, CanTransition(StatusApplied, StatusConfirmed))
	assert.False(t, CanTransition(StatusConfirmed, StatusPending))
	assert.False(t, CanTransition(StatusConfirmed, StatusConfirmed))
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for _, want := range []Status{StatusApplied, StatusPending, StatusConfirmed} {
		got, ok := ParseStatus(string(want))
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := ParseStatus("Ghosted")
	assert.False(t, ok)
}

func TestCanonicalJobURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://www.linkedin.com/jobs/view/4012345678",
		CanonicalJobURL("urn:li:jobPosting:4012345678"),
	)
	// Bare identifiers template unchanged.
	assert.Equal(t,
		"https://www.linkedin.com/jobs/view/111",
		CanonicalJobURL("111"),
	)
}

func TestExtractJobURL(t *testing.T) {
	t.Parallel()

	body := "your application was sent, see https://www.linkedin.com/jobs/view/222?trk=mail for details"
	assert.Equal(t, "https://www.linkedin.com/jobs/view/222", ExtractJobURL(body))
	assert.Empty(t, ExtractJobURL("no links here"))
}
