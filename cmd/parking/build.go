package main

import (
	"fmt"

	"github.com/banshee-data/parking.report/internal/capture"
	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/occupancy"
	"github.com/banshee-data/parking.report/internal/ranging"
	"github.com/banshee-data/parking.report/internal/report"
	"github.com/banshee-data/parking.report/internal/supervisor"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// devScript is the distance sequence replayed by the simulated ranger: a
// car arrives, parks for a while and leaves.
var devScript = []float64{182, 181, 183, 34, 33, 35, 34, 33, 34, 35, 180, 182}

func rangingConfig(cfg *config.SensorConfig) ranging.Config {
	return ranging.Config{
		PulseWidth:    cfg.GetPulseWidth(),
		EchoTimeout:   cfg.GetEchoTimeout(),
		RetryDelay:    cfg.GetRetryDelay(),
		MinDistanceCM: cfg.GetMinDistanceCM(),
		MaxDistanceCM: cfg.GetMaxDistanceCM(),
	}
}

func spaceConfig(cfg *config.SensorConfig) occupancy.SpaceConfig {
	return occupancy.SpaceConfig{SpaceID: cfg.GetSpaceID(), ThresholdCM: cfg.GetThresholdCM()}
}

func supervisorConfig(cfg *config.SensorConfig) supervisor.Config {
	return supervisor.Config{
		Variant:        string(cfg.GetVariant()),
		SamplingPeriod: cfg.GetSamplingPeriod(),
		LoopPeriod:     cfg.GetLoopPeriod(),
		StatusInterval: cfg.GetStatusInterval(),
	}
}

// buildSampler opens the ranger. In dev mode the pins are simulated and
// replay devScript forever.
func buildSampler(cfg *config.SensorConfig, clock timeutil.Clock, dev bool) (*ranging.Sampler, func() error, error) {
	if dev {
		lines := ranging.NewSimulatedLines(clock, devScript, true)
		return ranging.NewSampler(lines, lines, clock, rangingConfig(cfg)), func() error { return nil }, nil
	}
	lines, err := ranging.OpenGPIO(cfg.GetTriggerPin(), cfg.GetEchoPin())
	if err != nil {
		return nil, nil, err
	}
	return ranging.NewSampler(lines.Trigger, lines.Echo, clock, rangingConfig(cfg)), lines.Close, nil
}

// buildTransport picks the report transport named by the config.
func buildTransport(cfg *config.SensorConfig) (report.Transport, error) {
	switch kind := cfg.GetTransport(); kind {
	case config.TransportTCP:
		return report.NewTCPTransport(cfg.GetServerAddr()), nil
	case config.TransportSerial:
		s := cfg.GetSerial()
		opts, err := report.PortOptions{
			BaudRate: s.BaudRate,
			DataBits: s.DataBits,
			StopBits: s.StopBits,
			Parity:   s.Parity,
		}.Normalize()
		if err != nil {
			return nil, err
		}
		return report.NewSerialTransport(cfg.GetSerialPort(), opts), nil
	case config.TransportMQTT:
		return report.NewMQTTTransport(cfg.GetMQTTBroker(), cfg.GetMQTTClientID(), cfg.GetSpaceID()), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func buildSession(cfg *config.SensorConfig) (*report.Session, error) {
	t, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}
	return report.NewSession(t, report.SessionConfig{
		ReconnectInterval: cfg.GetReconnectInterval(),
		ConnectTimeout:    cfg.GetConnectTimeout(),
	}), nil
}

// buildCapturer returns the still camera, or nil when none is configured.
func buildCapturer(cfg *config.SensorConfig, clock timeutil.Clock, dev bool, devImage string) capture.Capturer {
	if dev {
		return &capture.FileCapturer{Path: devImage, Clock: clock}
	}
	if args := cfg.GetCaptureCommand(); len(args) > 0 {
		return capture.NewCommandCapturer(args, cfg.GetCaptureTimeout(), clock)
	}
	return nil
}

// buildUploader returns the image uploader, or nil when there is nowhere to
// send images.
func buildUploader(cfg *config.SensorConfig) capture.Uploader {
	addr := cfg.GetCaptureUploadAddr()
	if addr == "" {
		return nil
	}
	return capture.NewStreamUploader(addr, cfg.GetCaptureTimeout())
}
