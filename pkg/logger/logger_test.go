package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesJSONToFile(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	path := filepath.Join(t.TempDir(), "logs", "api.log")
	require.NoError(t, Init("info", "json", path))

	Debug("hidden")
	Named("pipeline").Info("stage complete", zap.String("stage", "derive"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "stage complete", entry["message"])
	assert.Equal(t, "adstrategy", entry["service"])
	assert.Equal(t, "pipeline", entry["logger"])
	assert.Equal(t, "derive", entry["stage"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("verbose", "json", "stdout"))
}
