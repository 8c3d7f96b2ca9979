package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical sensor defaults file.
const DefaultConfigPath = "config/parking.defaults.json"

// Variant selects which composition the sensor binary runs.
type Variant string

const (
	// VariantSensor samples the ultrasonic ranger, reports occupancy and
	// captures an image on every vacant to occupied edge.
	VariantSensor Variant = "sensor"
	// VariantCameraMonitor only exercises the camera and prints status.
	VariantCameraMonitor Variant = "camera-monitor"
)

// Transport kinds accepted by the "transport" field.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
	TransportMQTT   = "mqtt"
)

// SerialOptions mirrors the serial line parameters used when the report
// stream runs over a UART attached gateway.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// SensorConfig is the root configuration of the parking sensor. Every field
// is optional; the Get* accessors supply the defaults for anything omitted,
// so partial files are safe.
type SensorConfig struct {
	Variant *string `json:"variant,omitempty"`

	// Space
	SpaceID     *int     `json:"space_id,omitempty"`
	ThresholdCM *float64 `json:"threshold_cm,omitempty"`

	// Ranging hardware
	TriggerPin    *string  `json:"trigger_pin,omitempty"`
	EchoPin       *string  `json:"echo_pin,omitempty"`
	PulseWidth    *string  `json:"pulse_width,omitempty"`  // duration string like "10us"
	EchoTimeout   *string  `json:"echo_timeout,omitempty"` // duration string like "50ms"
	RetryDelay    *string  `json:"retry_delay,omitempty"`
	MinDistanceCM *float64 `json:"min_distance_cm,omitempty"`
	MaxDistanceCM *float64 `json:"max_distance_cm,omitempty"`

	// Scheduling
	SamplingPeriod *string `json:"sampling_period,omitempty"`
	LoopPeriod     *string `json:"loop_period,omitempty"`
	StatusInterval *string `json:"status_interval,omitempty"`

	// Reporting
	Transport         *string        `json:"transport,omitempty"`
	ServerAddr        *string        `json:"server_addr,omitempty"`
	ReconnectInterval *string        `json:"reconnect_interval,omitempty"`
	ConnectTimeout    *string        `json:"connect_timeout,omitempty"`
	SerialPort        *string        `json:"serial_port,omitempty"`
	Serial            *SerialOptions `json:"serial,omitempty"`
	MQTTBroker        *string        `json:"mqtt_broker,omitempty"`
	MQTTClientID      *string        `json:"mqtt_client_id,omitempty"`

	// Capture
	CaptureCommand    []string `json:"capture_command,omitempty"`
	CaptureUploadAddr *string  `json:"capture_upload_addr,omitempty"`
	CaptureTimeout    *string  `json:"capture_timeout,omitempty"`

	DebugListen *string `json:"debug_listen,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySensorConfig returns a SensorConfig with all fields unset.
func EmptySensorConfig() *SensorConfig {
	return &SensorConfig{}
}

// DefaultSensorConfig returns a SensorConfig with every field populated with
// its default value.
func DefaultSensorConfig() *SensorConfig {
	return &SensorConfig{
		Variant:           ptrString(string(VariantSensor)),
		SpaceID:           ptrInt(1),
		ThresholdCM:       ptrFloat64(50.0),
		TriggerPin:        ptrString("GPIO23"),
		EchoPin:           ptrString("GPIO24"),
		PulseWidth:        ptrString("10us"),
		EchoTimeout:       ptrString("50ms"),
		RetryDelay:        ptrString("100ms"),
		MinDistanceCM:     ptrFloat64(2.0),
		MaxDistanceCM:     ptrFloat64(400.0),
		SamplingPeriod:    ptrString("1s"),
		LoopPeriod:        ptrString("100ms"),
		StatusInterval:    ptrString("5s"),
		Transport:         ptrString(TransportTCP),
		ServerAddr:        ptrString("192.168.1.100:8080"),
		ReconnectInterval: ptrString("5s"),
		ConnectTimeout:    ptrString("2s"),
		CaptureTimeout:    ptrString("10s"),
	}
}

// LoadSensorConfig loads a SensorConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSensorConfig(path string) (*SensorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySensorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SensorConfig) Validate() error {
	if c.Variant != nil {
		switch Variant(*c.Variant) {
		case VariantSensor, VariantCameraMonitor:
		default:
			return fmt.Errorf("unknown variant %q: expected %q or %q", *c.Variant, VariantSensor, VariantCameraMonitor)
		}
	}

	if c.SpaceID != nil && *c.SpaceID < 0 {
		return fmt.Errorf("space_id must be non-negative, got %d", *c.SpaceID)
	}

	if c.ThresholdCM != nil && *c.ThresholdCM <= 0 {
		return fmt.Errorf("threshold_cm must be positive, got %f", *c.ThresholdCM)
	}

	if c.GetMinDistanceCM() < 0 || c.GetMinDistanceCM() >= c.GetMaxDistanceCM() {
		return fmt.Errorf("distance range [%f, %f] is empty", c.GetMinDistanceCM(), c.GetMaxDistanceCM())
	}

	durations := map[string]*string{
		"pulse_width":        c.PulseWidth,
		"echo_timeout":       c.EchoTimeout,
		"retry_delay":        c.RetryDelay,
		"sampling_period":    c.SamplingPeriod,
		"loop_period":        c.LoopPeriod,
		"status_interval":    c.StatusInterval,
		"reconnect_interval": c.ReconnectInterval,
		"connect_timeout":    c.ConnectTimeout,
		"capture_timeout":    c.CaptureTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.Transport != nil {
		switch strings.ToLower(*c.Transport) {
		case TransportTCP, TransportSerial, TransportMQTT:
		default:
			return fmt.Errorf("unsupported transport %q", *c.Transport)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// GetVariant returns the configured variant or VariantSensor.
func (c *SensorConfig) GetVariant() Variant {
	return Variant(stringOr(c.Variant, string(VariantSensor)))
}

// GetSpaceID returns the space_id value or the default.
func (c *SensorConfig) GetSpaceID() int {
	if c.SpaceID == nil {
		return 1
	}
	return *c.SpaceID
}

// GetThresholdCM returns the threshold_cm value or the default.
func (c *SensorConfig) GetThresholdCM() float64 {
	if c.ThresholdCM == nil {
		return 50.0
	}
	return *c.ThresholdCM
}

// GetTriggerPin returns the trigger_pin value or the default.
func (c *SensorConfig) GetTriggerPin() string { return stringOr(c.TriggerPin, "GPIO23") }

// GetEchoPin returns the echo_pin value or the default.
func (c *SensorConfig) GetEchoPin() string { return stringOr(c.EchoPin, "GPIO24") }

// GetPulseWidth returns the trigger pulse width.
func (c *SensorConfig) GetPulseWidth() time.Duration {
	return durationOr(c.PulseWidth, 10*time.Microsecond)
}

// GetEchoTimeout returns the bound on a single echo measurement.
func (c *SensorConfig) GetEchoTimeout() time.Duration {
	return durationOr(c.EchoTimeout, 50*time.Millisecond)
}

// GetRetryDelay returns the pause before the single retry pulse.
func (c *SensorConfig) GetRetryDelay() time.Duration {
	return durationOr(c.RetryDelay, 100*time.Millisecond)
}

// GetMinDistanceCM returns the lower bound of the admissible range.
func (c *SensorConfig) GetMinDistanceCM() float64 {
	if c.MinDistanceCM == nil {
		return 2.0
	}
	return *c.MinDistanceCM
}

// GetMaxDistanceCM returns the upper bound of the admissible range.
func (c *SensorConfig) GetMaxDistanceCM() float64 {
	if c.MaxDistanceCM == nil {
		return 400.0
	}
	return *c.MaxDistanceCM
}

// GetSamplingPeriod returns the period between distance samples.
func (c *SensorConfig) GetSamplingPeriod() time.Duration {
	return durationOr(c.SamplingPeriod, time.Second)
}

// GetLoopPeriod returns the supervisor tick period.
func (c *SensorConfig) GetLoopPeriod() time.Duration {
	return durationOr(c.LoopPeriod, 100*time.Millisecond)
}

// GetStatusInterval returns the period between status log lines.
func (c *SensorConfig) GetStatusInterval() time.Duration {
	return durationOr(c.StatusInterval, 5*time.Second)
}

// GetTransport returns the normalised transport kind.
func (c *SensorConfig) GetTransport() string {
	return strings.ToLower(stringOr(c.Transport, TransportTCP))
}

// GetServerAddr returns the aggregator host:port.
func (c *SensorConfig) GetServerAddr() string {
	return stringOr(c.ServerAddr, "192.168.1.100:8080")
}

// GetReconnectInterval returns the minimum spacing of reconnect attempts.
func (c *SensorConfig) GetReconnectInterval() time.Duration {
	return durationOr(c.ReconnectInterval, 5*time.Second)
}

// GetConnectTimeout returns the dial timeout of a single connect attempt.
func (c *SensorConfig) GetConnectTimeout() time.Duration {
	return durationOr(c.ConnectTimeout, 2*time.Second)
}

// GetSerialPort returns the serial device path used by the serial transport.
func (c *SensorConfig) GetSerialPort() string { return stringOr(c.SerialPort, "/dev/ttyS0") }

// GetSerial returns the serial line options; zero fields are defaulted by
// the transport.
func (c *SensorConfig) GetSerial() SerialOptions {
	if c.Serial == nil {
		return SerialOptions{}
	}
	return *c.Serial
}

// GetMQTTBroker returns the MQTT broker URL.
func (c *SensorConfig) GetMQTTBroker() string {
	return stringOr(c.MQTTBroker, "tcp://localhost:1883")
}

// GetMQTTClientID returns the MQTT client id, derived from the space id when
// unset.
func (c *SensorConfig) GetMQTTClientID() string {
	if c.MQTTClientID == nil || *c.MQTTClientID == "" {
		return fmt.Sprintf("parking-%d", c.GetSpaceID())
	}
	return *c.MQTTClientID
}

// GetCaptureCommand returns the external still-capture command, if any.
func (c *SensorConfig) GetCaptureCommand() []string {
	return c.CaptureCommand
}

// GetCaptureUploadAddr returns where captured images are uploaded. It
// defaults to the report server address.
func (c *SensorConfig) GetCaptureUploadAddr() string {
	if c.CaptureUploadAddr == nil || *c.CaptureUploadAddr == "" {
		return c.GetServerAddr()
	}
	return *c.CaptureUploadAddr
}

// GetCaptureTimeout returns the bound on one capture plus upload.
func (c *SensorConfig) GetCaptureTimeout() time.Duration {
	return durationOr(c.CaptureTimeout, 10*time.Second)
}

// GetDebugListen returns the debug HTTP listen address; empty disables it.
func (c *SensorConfig) GetDebugListen() string { return stringOr(c.DebugListen, "") }
