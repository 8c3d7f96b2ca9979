package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSensorConfig(t *testing.T) {
	cfg := DefaultSensorConfig()

	if cfg.ThresholdCM == nil || *cfg.ThresholdCM != 50.0 {
		t.Errorf("Expected ThresholdCM 50.0, got %v", cfg.ThresholdCM)
	}
	if cfg.EchoTimeout == nil || *cfg.EchoTimeout != "50ms" {
		t.Errorf("Expected EchoTimeout '50ms', got %v", cfg.EchoTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults failed validation: %v", err)
	}

	if cfg.GetVariant() != VariantSensor {
		t.Errorf("GetVariant() = %q, want %q", cfg.GetVariant(), VariantSensor)
	}
	if cfg.GetSamplingPeriod() != time.Second {
		t.Errorf("GetSamplingPeriod() = %v, want 1s", cfg.GetSamplingPeriod())
	}
	if cfg.GetReconnectInterval() != 5*time.Second {
		t.Errorf("GetReconnectInterval() = %v, want 5s", cfg.GetReconnectInterval())
	}
	if cfg.GetPulseWidth() != 10*time.Microsecond {
		t.Errorf("GetPulseWidth() = %v, want 10µs", cfg.GetPulseWidth())
	}
}

func TestEmptySensorConfigGetters(t *testing.T) {
	cfg := EmptySensorConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"variant", cfg.GetVariant(), VariantSensor},
		{"space id", cfg.GetSpaceID(), 1},
		{"threshold", cfg.GetThresholdCM(), 50.0},
		{"pulse width", cfg.GetPulseWidth(), 10 * time.Microsecond},
		{"echo timeout", cfg.GetEchoTimeout(), 50 * time.Millisecond},
		{"retry delay", cfg.GetRetryDelay(), 100 * time.Millisecond},
		{"min distance", cfg.GetMinDistanceCM(), 2.0},
		{"max distance", cfg.GetMaxDistanceCM(), 400.0},
		{"sampling period", cfg.GetSamplingPeriod(), time.Second},
		{"loop period", cfg.GetLoopPeriod(), 100 * time.Millisecond},
		{"reconnect interval", cfg.GetReconnectInterval(), 5 * time.Second},
		{"transport", cfg.GetTransport(), TransportTCP},
		{"mqtt client id", cfg.GetMQTTClientID(), "parking-1"},
		{"upload addr follows server", cfg.GetCaptureUploadAddr(), cfg.GetServerAddr()},
		{"debug listen", cfg.GetDebugListen(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadSensorConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sensor.json")

	testJSON := `{
  "variant": "camera-monitor",
  "space_id": 7,
  "threshold_cm": 35.5,
  "sampling_period": "500ms",
  "transport": "MQTT",
  "serial": {"baud_rate": 9600}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadSensorConfig(configPath)
	if err != nil {
		t.Fatalf("LoadSensorConfig failed: %v", err)
	}

	if cfg.GetVariant() != VariantCameraMonitor {
		t.Errorf("GetVariant() = %q", cfg.GetVariant())
	}
	if cfg.GetSpaceID() != 7 {
		t.Errorf("GetSpaceID() = %d, want 7", cfg.GetSpaceID())
	}
	if cfg.GetThresholdCM() != 35.5 {
		t.Errorf("GetThresholdCM() = %f, want 35.5", cfg.GetThresholdCM())
	}
	if cfg.GetSamplingPeriod() != 500*time.Millisecond {
		t.Errorf("GetSamplingPeriod() = %v, want 500ms", cfg.GetSamplingPeriod())
	}
	if cfg.GetTransport() != TransportMQTT {
		t.Errorf("GetTransport() = %q, want %q", cfg.GetTransport(), TransportMQTT)
	}
	if cfg.GetSerial().BaudRate != 9600 {
		t.Errorf("GetSerial().BaudRate = %d, want 9600", cfg.GetSerial().BaudRate)
	}
	// omitted fields keep defaults
	if cfg.GetEchoTimeout() != 50*time.Millisecond {
		t.Errorf("GetEchoTimeout() = %v, want default 50ms", cfg.GetEchoTimeout())
	}
}

func TestLoadSensorConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("sensor.yaml", `{}`), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", `{"space_id":`), "failed to parse"},
		{"bad duration", write("dur.json", `{"echo_timeout":"fast"}`), "invalid echo_timeout"},
		{"negative threshold", write("thr.json", `{"threshold_cm":-1}`), "threshold_cm must be positive"},
		{"unknown variant", write("var.json", `{"variant":"doorbell"}`), "unknown variant"},
		{"unknown transport", write("tr.json", `{"transport":"carrier-pigeon"}`), "unsupported transport"},
		{"empty range", write("rng.json", `{"min_distance_cm":400,"max_distance_cm":2}`), "is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSensorConfig(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultsFileMatchesDefaults(t *testing.T) {
	cfg, err := LoadSensorConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("failed to load %s: %v", DefaultConfigPath, err)
	}
	defaults := DefaultSensorConfig()

	if cfg.GetThresholdCM() != defaults.GetThresholdCM() {
		t.Errorf("threshold: file %f, code %f", cfg.GetThresholdCM(), defaults.GetThresholdCM())
	}
	if cfg.GetSamplingPeriod() != defaults.GetSamplingPeriod() {
		t.Errorf("sampling period: file %v, code %v", cfg.GetSamplingPeriod(), defaults.GetSamplingPeriod())
	}
	if cfg.GetReconnectInterval() != defaults.GetReconnectInterval() {
		t.Errorf("reconnect interval: file %v, code %v", cfg.GetReconnectInterval(), defaults.GetReconnectInterval())
	}
	if len(cfg.GetCaptureCommand()) == 0 {
		t.Error("defaults file should carry a capture command")
	}
}
