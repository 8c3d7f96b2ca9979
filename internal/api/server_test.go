package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fixedClients int

func (n fixedClients) ClientsConnected() int { return int(n) }

func setupServer(t *testing.T) (*Server, *db.DB, *timeutil.MockClock) {
	t.Helper()
	_, restore := monitoring.Capture()
	t.Cleanup(restore)

	store, err := db.NewDB(filepath.Join(t.TempDir(), "parking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := timeutil.NewMockClock(t0)
	return NewServer(store, fixedClients(2), clock), store, clock
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _, clock := setupServer(t)
	clock.Advance(42 * time.Second)

	rec := get(t, s.ServeMux(), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"dev","clients_connected":2,"uptime_seconds":42}`, rec.Body.String())
}

func TestSpaces(t *testing.T) {
	s, store, _ := setupServer(t)
	ctx := context.Background()
	mux := s.ServeMux()

	rec := get(t, mux, "/api/spaces")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, store.UpsertSpace(ctx, db.SpaceReport{
		SpaceID: 3, Occupied: true, DistanceCM: 31.5, ReportedMS: uint64(t0.UnixMilli()), ReceivedAt: t0, Source: "10.0.0.3",
	}))

	rec = get(t, mux, "/api/spaces")
	require.Equal(t, http.StatusOK, rec.Code)
	var spaces []db.SpaceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spaces))
	require.Len(t, spaces, 1)
	assert.Equal(t, 3, spaces[0].SpaceID)

	rec = get(t, mux, "/api/spaces/3")
	require.Equal(t, http.StatusOK, rec.Code)
	var space db.SpaceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &space))
	want := db.SpaceState{
		SpaceID: 3, Occupied: true, DistanceCM: 31.5,
		ReportedAt: t0, ReceivedAt: t0, ChangedAt: t0,
		Source: "10.0.0.3", ReportCount: 1,
	}
	if diff := cmp.Diff(want, space); diff != "" {
		t.Errorf("space mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/spaces/4").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/spaces/abc").Code)
}

func TestCaptures(t *testing.T) {
	s, store, _ := setupServer(t)
	ctx := context.Background()
	mux := s.ServeMux()

	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		require.NoError(t, store.RecordCapture(ctx, db.CaptureRecord{
			ID: name, Filename: name, SizeBytes: 100, Source: "10.0.0.3",
			ReceivedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := get(t, mux, "/api/captures?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []db.CaptureRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "c.jpg", got[0].Filename)
	assert.Equal(t, "b.jpg", got[1].Filename)

	rec = get(t, mux, "/api/captures")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 3)

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/captures?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/captures?limit=x").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := setupServer(t)
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/spaces", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health?x=1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, "100", statusCodeColor(100))
}

func TestCaptureImage(t *testing.T) {
	s, store, _ := setupServer(t)
	ctx := context.Background()
	mux := s.ServeMux()

	require.NoError(t, store.RecordCapture(ctx, db.CaptureRecord{ID: "abc", Filename: "parking_abc.jpg", SizeBytes: 4, ReceivedAt: t0}))
	require.NoError(t, store.RecordCapture(ctx, db.CaptureRecord{ID: "evil", Filename: "../secret.jpg", SizeBytes: 4, ReceivedAt: t0}))

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/captures/abc/image").Code, "disabled without a directory")

	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(images, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(images, "parking_abc.jpg"), []byte{0xff, 0xd8, 0xff, 0xd9}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.jpg"), []byte("nope"), 0o644))
	s.ImagesDir = images

	rec := get(t, mux, "/api/captures/abc/image")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xd9}, rec.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/captures/evil/image").Code)
	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/captures/missing/image").Code)
}
