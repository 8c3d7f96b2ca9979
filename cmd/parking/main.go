// Command parking runs a parking space sensor: it ranges the space, reports
// occupancy changes and photographs arriving vehicles. The camera-monitor
// variant only exercises the camera.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/parking.report/internal/capture"
	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/occupancy"
	"github.com/banshee-data/parking.report/internal/supervisor"
	"github.com/banshee-data/parking.report/internal/timeutil"
	"github.com/banshee-data/parking.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to the sensor JSON config (defaults are used when empty)")
	variant     = flag.String("variant", "", "Override the configured variant: sensor or camera-monitor")
	devMode     = flag.Bool("dev", false, "Run with simulated ranger pins and a file-backed camera")
	devImage    = flag.String("dev-image", "cmd/parking/testdata/still.jpg", "Image returned by the camera in dev mode")
	debugListen = flag.String("debug-listen", "", "Debug HTTP listen address (overrides config)")
	showVer     = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.SensorConfig, error) {
	cfg := config.DefaultSensorConfig()
	if *configPath != "" {
		loaded, err := config.LoadSensorConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *variant != "" {
		v := *variant
		cfg.Variant = &v
	}
	if *debugListen != "" {
		addr := *debugListen
		cfg.DebugListen = &addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Printf("parking %s", version.String())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	mux := http.NewServeMux()

	var wg sync.WaitGroup
	switch cfg.GetVariant() {
	case config.VariantCameraMonitor:
		cam := buildCapturer(cfg, clock, *devMode, *devImage)
		if cam == nil {
			log.Fatal("camera-monitor needs a capture_command (or -dev)")
		}
		m := supervisor.NewCameraMonitor(clock, supervisor.MonitorConfig{
			LoopPeriod:     cfg.GetLoopPeriod(),
			StatusInterval: cfg.GetStatusInterval(),
			CaptureTimeout: cfg.GetCaptureTimeout(),
		}, cam)
		m.AttachDebugRoutes(mux)
		log.Printf("📷 camera monitor started")
		runLoop(&wg, func() error { return m.Run(ctx) })

	default:
		sup, closeLines := buildSupervisor(ctx, cfg, clock)
		defer func() {
			if err := closeLines(); err != nil {
				log.Printf("failed to release ranger pins: %v", err)
			}
		}()
		sup.AttachDebugRoutes(mux)
		log.Printf("🅿️ parking sensor started: space %d, threshold %.1f cm, transport %s",
			cfg.GetSpaceID(), cfg.GetThresholdCM(), cfg.GetTransport())
		runLoop(&wg, func() error { return sup.Run(ctx) })
	}

	if addr := cfg.GetDebugListen(); addr != "" {
		serveDebug(ctx, &wg, addr, mux)
	}

	wg.Wait()
	log.Printf("👋 shut down")
}

// buildSupervisor wires the sensor variant and starts its capture worker.
func buildSupervisor(ctx context.Context, cfg *config.SensorConfig, clock timeutil.Clock) (*supervisor.Supervisor, func() error) {
	sampler, closeLines, err := buildSampler(cfg, clock, *devMode)
	if err != nil {
		log.Fatalf("failed to open ranger: %v", err)
	}
	if err := sampler.Init(); err != nil {
		log.Fatalf("failed to initialise ranger: %v", err)
	}

	session, err := buildSession(cfg)
	if err != nil {
		log.Fatalf("failed to configure report transport: %v", err)
	}

	var captures supervisor.CaptureRequester
	if cam := buildCapturer(cfg, clock, *devMode, *devImage); cam != nil {
		d := capture.NewDispatcher(cam, buildUploader(cfg))
		d.Start(ctx)
		captures = d
	} else {
		log.Printf("no camera configured, captures disabled")
	}

	tracker := occupancy.NewTracker(spaceConfig(cfg))
	return supervisor.New(clock, supervisorConfig(cfg), sampler, tracker, session, capture.NewCoordinator(), captures), closeLines
}

func runLoop(wg *sync.WaitGroup, run func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := run(); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("loop stopped: %v", err)
			os.Exit(1)
		}
		log.Print("loop routine terminated")
	}()
}

func serveDebug(ctx context.Context, wg *sync.WaitGroup, addr string, mux *http.ServeMux) {
	server := &http.Server{Addr: addr, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("🔧 debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down debug server: %v", err)
		}
	}()
}
