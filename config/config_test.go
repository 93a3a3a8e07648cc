package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "settings.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.FileExists(t, path)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"serial_device": "/dev/ttyUSB0", "grbl_buffer_size": 256}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GRBLSTREAM_SERIAL_BAUDRATE=9600\n"), 0o644))
	t.Setenv("GRBLSTREAM_GRBL_BUFFER_SIZE", "64")
	t.Setenv("GRBLSTREAM_SERIAL_BAUDRATE", "")
	os.Unsetenv("GRBLSTREAM_SERIAL_BAUDRATE")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialDevice)
	assert.Equal(t, 64, cfg.GrblBufferSize)
	assert.Equal(t, 9600, cfg.SerialBaudrate)
	assert.Equal(t, 5, cfg.StreamPendingCount)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Set(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Set("serial-device", "/dev/ttyACM0"))
	require.NoError(t, cfg.Set("keep_open", "false"))
	require.NoError(t, cfg.Set("status_poll_interval", "0.5"))
	require.NoError(t, cfg.Set("jogging_values", "0.1,1,10"))
	require.NoError(t, cfg.Set("stream_pending_count", "20"))

	assert.Equal(t, "/dev/ttyACM0", cfg.SerialDevice)
	assert.False(t, cfg.KeepOpen)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, []float64{0.1, 1, 10}, cfg.JoggingValues)
	assert.Equal(t, 20, cfg.StreamPendingCount)

	assert.Error(t, cfg.Set("bogus", "1"))
	assert.Error(t, cfg.Set("keep_open", "maybe"))
	assert.Error(t, cfg.Set("grbl_buffer_size", "lots"))
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv([]string{
		"GRBLSTREAM_JOGGING_VALUES=1,5,50",
		"GRBLSTREAM_JOGGING_INIT_VALUE=5",
		"GRBLSTREAM_USE_GRBL_JOGGING=false",
		"GRBLSTREAM_MONITOR_ADDR=:9091",
		"SERIAL_DEVICE=/dev/ignored",
		"PATH=/usr/bin",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 5, 50}, cfg.JoggingValues)
	assert.Equal(t, 5.0, cfg.JoggingInitValue)
	assert.False(t, cfg.UseGrblJogging)
	assert.Equal(t, ":9091", cfg.MonitorAddr)
	assert.Empty(t, cfg.SerialDevice)
	assert.Equal(t, 115200, cfg.SerialBaudrate)
	assert.NoError(t, cfg.Validate())

	assert.Error(t, cfg.ApplyEnv([]string{"GRBLSTREAM_STARTUP_TIMEOUT=soon"}))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	cfg.JoggingInitValue = 3
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RejectPolicy = "retry"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.JoggingUnit = "furlong"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SerialDriver = "usb"
	assert.Error(t, cfg.Validate())
}
