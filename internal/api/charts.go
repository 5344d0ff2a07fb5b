package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/emg.gesture/internal/httputil"
	"github.com/banshee-data/emg.gesture/internal/recording"
)

// maxChartPoints bounds the points per series; longer buffers are strided.
const maxChartPoints = 2000

func chartStride(n int) int {
	if n <= maxChartPoints {
		return 1
	}
	return (n + maxChartPoints - 1) / maxChartPoints
}

func channelName(c int) string { return "Channel" + strconv.Itoa(c+1) }

// liveChart renders the live buffer as an HTML line chart.
func (s *Server) liveChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	snap := s.opts.Acquisition.Snapshot()
	if snap.Len() == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "live buffer is empty")
		return
	}
	stride := chartStride(snap.Len())

	xs := make([]string, 0, snap.Len()/stride+1)
	for i := 0; i < snap.Len(); i += stride {
		xs = append(xs, strconv.FormatFloat(snap.Time[i], 'f', 3, 64))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "EMG live", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "EMG live buffer", Subtitle: fmt.Sprintf("samples=%d stride=%d", snap.Len(), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Amplitude", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.SetXAxis(xs)
	for c, ch := range snap.Data {
		data := make([]opts.LineData, 0, len(xs))
		for i := 0; i < len(ch); i += stride {
			data = append(data, opts.LineData{Value: ch[i]})
		}
		line.AddSeries(channelName(c), data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// livePNG renders the live buffer as a PNG, one line per channel.
func (s *Server) livePNG(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	snap := s.opts.Acquisition.Snapshot()
	if snap.Len() == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "live buffer is empty")
		return
	}
	var buf bytes.Buffer
	if err := RenderPNG(&buf, snap, 12*vg.Inch, 5*vg.Inch); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// RenderPNG draws snap as a line plot.
func RenderPNG(out io.Writer, snap recording.Snapshot, width, height vg.Length) error {
	p := plot.New()
	p.Title.Text = "EMG live buffer"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Amplitude"
	p.Add(plotter.NewGrid())

	stride := chartStride(snap.Len())
	for c, ch := range snap.Data {
		pts := make(plotter.XYs, 0, len(ch)/stride+1)
		for i := 0; i < len(ch); i += stride {
			pts = append(pts, plotter.XY{X: snap.Time[i], Y: ch[i]})
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("channel %d: %w", c+1, err)
		}
		l.Width = vg.Points(1)
		l.Color = plotutil.Color(c)
		p.Add(l)
		p.Legend.Add(channelName(c), l)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(out)
	return err
}
