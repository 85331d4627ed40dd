package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/internal/storage/models"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReportsRoundTripNewestFirst(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, c.InsertReport(ctx, &models.ReportRecord{
			ID:        id,
			Domain:    "electronics",
			Status:    "success",
			Payload:   json.RawMessage(`{"domain":"electronics"}`),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, c.InsertReport(ctx, &models.ReportRecord{
		ID:           "r4",
		Domain:       "retail",
		Status:       "error",
		ErrorMessage: "boom",
		Payload:      json.RawMessage(`{"status":"error"}`),
		CreatedAt:    base.Add(time.Hour),
	}))

	got, err := c.ListReports(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"r4", "r3", "r2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "boom", got[0].ErrorMessage)
	assert.JSONEq(t, `{"status":"error"}`, string(got[0].Payload))
	assert.True(t, got[0].CreatedAt.Equal(base.Add(time.Hour)))

	one, err := c.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "electronics", one.Domain)

	_, err = c.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdCopies(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.InsertAdCopy(ctx, &models.AdCopyRecord{
		ID:        "c1",
		Product:   "TV remotes",
		Company:   "Onida",
		Topic:     "Diwali",
		RawText:   "1. Instagram Caption: Buy now",
		Caption:   "buy now",
		CreatedAt: time.Now(),
	}))

	got, err := c.ListAdCopies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Diwali", got[0].Topic)
	assert.Equal(t, "buy now", got[0].Caption)
	assert.Empty(t, got[0].Hashtags)
}

func TestListEmpty(t *testing.T) {
	c := newClient(t)
	got, err := c.ListReports(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
