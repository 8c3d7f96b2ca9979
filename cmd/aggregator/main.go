// Command aggregator collects occupancy reports and images from parking
// sensors, keeps the latest state of every space in sqlite and serves it
// over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/parking.report/internal/aggregator"
	"github.com/banshee-data/parking.report/internal/api"
	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/timeutil"
	"github.com/banshee-data/parking.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Sensor stream listen address")
	httpListen = flag.String("http", ":8081", "HTTP API listen address")
	dbPath     = flag.String("db", "parking.db", "Path to the sqlite database")
	imagesDir  = flag.String("images", "parking_images", "Directory for received images")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// newMux builds the HTTP surface: the JSON API plus the /debug admin pages.
func newMux(store *db.DB, srv *aggregator.Server, clock timeutil.Clock, images string) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	apiServer := api.NewServer(store, srv, clock)
	apiServer.ImagesDir = images
	apiServer.Attach(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return mux, nil
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Printf("aggregator %s", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	clock := timeutil.RealClock{}
	srv := aggregator.NewServer(store, *imagesDir, clock)

	mux, err := newMux(store, srv, clock, *imagesDir)
	if err != nil {
		log.Fatalf("failed to attach admin routes: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, *listen); err != nil {
			log.Printf("aggregator stopped: %v", err)
			stop()
		}
		log.Print("stream routine terminated")
	}()

	if *httpListen != "" {
		server := &http.Server{
			Addr:    *httpListen,
			Handler: api.LoggingMiddleware(mux),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("🌐 HTTP API listening on %s", *httpListen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server: %v", err)
				stop()
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("failed to shut down HTTP server: %v", err)
			}
		}()
	}

	wg.Wait()
	log.Printf("👋 aggregator shut down")
}
