package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/arrowline/internal/arrowline"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "arrowline.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(32<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	assert.Equal(t, 100, cfg.Queue.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Queue.StaleAfter)
	assert.Equal(t, 3, cfg.Queue.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.Retry.InitialBackoff)
	assert.Equal(t, arrowline.SortAsc, cfg.Layer.Sort.Order)
	assert.Equal(t, arrowline.PropertyNumber, cfg.Layer.Sort.Type)
	assert.Equal(t, arrowline.CenterVertexMean, cfg.Layer.Center)
	assert.Equal(t, arrowline.AnchorMidpoint, cfg.Layer.Anchor)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/arrowline
  pool:
    max_conns: 20
    prepare_statements: true
log:
  level: debug
  format: console
server:
  port: 9090
queue:
  concurrency: 8
  rate: 2.5
  stale_after: 5m
layer:
  sort:
    property: visited_at
    order: desc
    type: date_time
    date_time_format: yyyy-MM-dd HH:mm
  center: bounds
  anchor: great-circle
  filters:
    - property: kind
      function: equalTo
      type: string
      value: stop
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/arrowline", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(20), cfg.Store.Pool.MaxConns)
	assert.True(t, cfg.Store.Pool.PrepareStatements)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.InDelta(t, 2.5, cfg.Queue.Rate, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Queue.StaleAfter)
	assert.Equal(t, "visited_at", cfg.Layer.Sort.Property)
	assert.Equal(t, arrowline.SortDesc, cfg.Layer.Sort.Order)
	assert.Equal(t, arrowline.PropertyDateTime, cfg.Layer.Sort.Type)
	assert.Equal(t, "yyyy-MM-dd HH:mm", cfg.Layer.Sort.DateTimeFormat)
	assert.Equal(t, arrowline.CenterBounds, cfg.Layer.Center)
	assert.Equal(t, arrowline.AnchorGreatCircle, cfg.Layer.Anchor)
	require.Len(t, cfg.Layer.Filters, 1)
	assert.Equal(t, "equalTo", cfg.Layer.Filters[0].Function)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Queue.BatchSize)

	assert.NoError(t, cfg.Validate("queue"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ARROWLINE_STORE_DRIVER", "postgres")
	t.Setenv("ARROWLINE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ARROWLINE_SERVER_PORT", "3000")
	t.Setenv("ARROWLINE_LAYER_CENTER", "bounds")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, arrowline.CenterBounds, cfg.Layer.Center)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "arrowline.db"
	cfg.Server.Port = 8080
	cfg.Queue.Concurrency = 4
	return cfg
}

func TestValidateBuild(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate("build"))
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("queue")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Queue.Concurrency = 0
	err := cfg.Validate("queue")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.concurrency must be between 1 and 64")

	cfg.Queue.Concurrency = 65
	err = cfg.Validate("queue")
	assert.Error(t, err)

	cfg.Queue.Concurrency = 64
	assert.NoError(t, cfg.Validate("queue"))

	cfg.Queue.Rate = -1
	err = cfg.Validate("queue")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.rate must be >= 0")

	cfg.Queue.Rate = 0
	cfg.Queue.StaleAfter = -time.Second
	err = cfg.Validate("queue")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.stale_after must be >= 0")
}

func TestValidateLayer(t *testing.T) {
	cfg := validDefaults()
	cfg.Layer.Sort = arrowline.SortConfig{Property: "when", Type: arrowline.PropertyDateTime}

	err := cfg.Validate("build")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "layer:")

	cfg.Layer.Sort.DateTimeFormat = "yyyy-MM-dd"
	assert.NoError(t, cfg.Validate("build"))

	cfg.Layer.Anchor = "sideways"
	assert.Error(t, cfg.Validate("build"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
