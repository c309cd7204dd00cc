package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	cases := map[string]Period{
		"1y":         {Years: 1},
		"6mo":        {Months: 6},
		"30d":        {Days: 30},
		"2w":         {Days: 14},
		"24h":        {Clock: 24 * time.Hour},
		"1y6mo2d12h": {Years: 1, Months: 6, Days: 2, Clock: 12 * time.Hour},
		" 90m ":      {Clock: 90 * time.Minute},
	}
	for in, want := range cases {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParsePeriodRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "y", "10", "5x", "3months"} {
		_, err := ParsePeriod(in)
		assert.Error(t, err, in)
	}
}

func TestPeriodBeforeFollowsCalendar(t *testing.T) {
	now := time.Date(2025, time.August, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC), Months(6).Before(now))
	assert.Equal(t, time.Date(2024, time.August, 31, 12, 0, 0, 0, time.UTC), Years(1).Before(now))
	assert.Equal(t, time.Date(2025, time.August, 30, 12, 0, 0, 0, time.UTC), Period{Clock: 24 * time.Hour}.Before(now))
}

func TestPeriodString(t *testing.T) {
	assert.Equal(t, "1y6mo", Period{Years: 1, Months: 6}.String())
	assert.Equal(t, "0d", Period{}.String())
	p, err := ParsePeriod(Period{Days: 3, Clock: time.Hour}.String())
	require.NoError(t, err)
	assert.Equal(t, Period{Days: 3, Clock: time.Hour}, p)
}

func TestPeriodHuman(t *testing.T) {
	assert.Equal(t, "1 year", Years(1).Human())
	assert.Equal(t, "1 year 6 months", Period{Years: 1, Months: 6}.Human())
	assert.Equal(t, "30 days", Days(30).Human())
	assert.Equal(t, "0 days", Period{}.Human())
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.NoticeAfter = Months(7)
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.AnonymizeAfter = Years(4)
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.NoticeWindow = Period{}
	assert.Error(t, p.Validate())
}
