package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/pkg/config"
)

const feed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1\r\n" +
	"DTSTART;VALUE=DATE:20261101\r\n" +
	"SUMMARY:Diwali\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2\r\n" +
	"DTSTART;VALUE=DATE:20261001\r\n" +
	"SUMMARY:Past Festival\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:3\r\n" +
	"DTSTART;VALUE=DATE:20261020\r\n" +
	"SUMMARY:Dussehra\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:4\r\n" +
	"DTSTART;VALUE=DATE:20261225\r\n" +
	"SUMMARY:Christmas\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func newClient(t *testing.T, handler http.HandlerFunc, count int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.CalendarConfig{ICSURL: srv.URL, Count: count, TimeoutSec: 2})
	c.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestUpcomingSortedAndLimited(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}, 2)

	got := c.Upcoming(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Dussehra", "Diwali"}, Names(got))
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), got[0].Date)
}

func TestUpcomingDegradesOnFailure(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 5)

	got := c.Upcoming(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpcomingWithoutURL(t *testing.T) {
	c := NewClient(config.CalendarConfig{})
	assert.Empty(t, c.Upcoming(context.Background()))
}
