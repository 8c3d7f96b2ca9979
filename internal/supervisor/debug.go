package supervisor

import (
	"fmt"
	"image/color"
	"io"
	"net/http"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg" // registers the png format
	"tailscale.com/tsweb"

	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/occupancy"
)

// AttachDebugRoutes registers the sensor's /debug/parking pages.
func (s *Supervisor) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Parking space", func() any {
		st := s.Status()
		if !st.HasReading {
			return fmt.Sprintf("%d (no reading yet)", st.SpaceID)
		}
		label := "vacant"
		if st.Occupied {
			label = "occupied"
		}
		return fmt.Sprintf("%d %s at %.1f cm", st.SpaceID, label, st.LastDistanceCM)
	})

	debug.HandleFunc("parking", "Sensor status snapshot (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Status())
	})

	debug.HandleFunc("parking-plot", "Recent distance samples (PNG)", func(w http.ResponseWriter, r *http.Request) {
		st := s.Status()
		w.Header().Set("Content-Type", "image/png")
		if err := RenderDistancePlot(w, s.Points(), st.SpaceID, st.ThresholdCM, st.TakenAt); err != nil {
			httputil.InternalServerError(w, err.Error())
		}
	})

	debug.HandleSilentFunc("parking-measure", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		s.RequestMeasurement()
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	})
}

// AttachDebugRoutes registers the camera monitor's /debug pages.
func (m *CameraMonitor) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Camera", func() any { return m.Status().Camera })
	debug.HandleFunc("camera", "Camera monitor status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, m.Status())
	})
}

// RenderDistancePlot draws the recent distances against the occupancy
// threshold as a PNG. The x axis is seconds before now.
func RenderDistancePlot(w io.Writer, points []occupancy.Point, spaceID int, thresholdCM float64, now time.Time) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Space %d - Distance", spaceID)
	p.X.Label.Text = "Seconds ago"
	p.Y.Label.Text = "Distance (cm)"
	p.Y.Min = 0

	if len(points) > 0 {
		xys := make(plotter.XYs, len(points))
		for i, pt := range points {
			xys[i].X = -now.Sub(pt.At).Seconds()
			xys[i].Y = pt.DistanceCM
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{B: 180, A: 255}
		p.Add(line)
		p.Legend.Add("distance", line)
	} else {
		p.X.Min, p.X.Max = -60, 0
		p.Y.Max = thresholdCM * 2
	}

	threshold := plotter.NewFunction(func(float64) float64 { return thresholdCM })
	threshold.Color = color.RGBA{R: 200, A: 255}
	threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(threshold)
	p.Legend.Add("threshold", threshold)

	wt, err := p.WriterTo(6*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
