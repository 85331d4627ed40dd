// Package calendar reads upcoming public holidays from an ICS feed.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/pkg/config"
	"github.com/adstrategy/backend/pkg/logger"
)

type Festival struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

type Client struct {
	url        string
	count      int
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg config.CalendarConfig) *Client {
	timeout := config.Seconds(cfg.TimeoutSec)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	count := cfg.Count
	if count <= 0 {
		count = 5
	}
	return &Client{
		url:        cfg.ICSURL,
		count:      count,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Upcoming returns the next festivals on or after today, earliest first.
// Any fetch or parse failure is logged and yields an empty list.
func (c *Client) Upcoming(ctx context.Context) []Festival {
	festivals, err := c.fetch(ctx)
	if err != nil {
		metrics.ExternalCallErrors.WithLabelValues("calendar").Inc()
		logger.Warn("Failed to fetch festival calendar", zap.String("url", c.url), zap.Error(err))
		return []Festival{}
	}
	return festivals
}

func (c *Client) fetch(ctx context.Context) ([]Festival, error) {
	if c.url == "" {
		return nil, fmt.Errorf("no calendar url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	cal, err := ics.ParseCalendar(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var festivals []Festival
	for _, event := range cal.Events() {
		date, ok := eventDate(event)
		if !ok || date.Before(today) {
			continue
		}

		name := ""
		if prop := event.GetProperty(ics.ComponentPropertySummary); prop != nil {
			name = prop.Value
		}

		festivals = append(festivals, Festival{Name: name, Date: date})
	}

	sort.SliceStable(festivals, func(i, j int) bool {
		if !festivals[i].Date.Equal(festivals[j].Date) {
			return festivals[i].Date.Before(festivals[j].Date)
		}
		return festivals[i].Name < festivals[j].Name
	})

	if len(festivals) > c.count {
		festivals = festivals[:c.count]
	}

	logger.Debug("Festival calendar loaded", zap.Int("upcoming", len(festivals)))

	return festivals, nil
}

// eventDate reduces DTSTART to a UTC calendar day. Both all-day values and
// date-times are accepted.
func eventDate(event *ics.VEvent) (time.Time, bool) {
	prop := event.GetProperty(ics.ComponentPropertyDtStart)
	if prop == nil || len(prop.Value) < 8 {
		return time.Time{}, false
	}
	start, err := time.Parse("20060102", prop.Value[:8])
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

func Names(festivals []Festival) []string {
	names := make([]string, len(festivals))
	for i, f := range festivals {
		names[i] = f.Name
	}
	return names
}
