package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// viridis stops, matching the colour map the desktop monitor used.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// SurfaceOptions controls the HTML surface chart.
type SurfaceOptions struct {
	Tag        uint64
	Subtitle   string
	AssetsHost string // empty uses the go-echarts CDN
	Width      string
	Height     string
}

// WriteSurfaceHTML renders records as a 3D amplitude surface: device
// timestamp on X, subcarrier index on Y, amplitude on Z.
func WriteSurfaceHTML(w io.Writer, records []csi.Record, o SurfaceOptions) error {
	m, err := Matrix(records)
	if err != nil {
		return err
	}
	rows, cols := m.Dims()
	lo, hi := amplitudeRange(m)
	if lo == hi {
		hi = lo + 1
	}

	data := make([]opts.Chart3DData, 0, rows*cols)
	for i := 0; i < rows; i++ {
		ts := records[i].Timestamp
		for j := 0; j < cols; j++ {
			data = append(data, opts.Chart3DData{Value: []interface{}{ts, j, m.At(i, j)}})
		}
	}

	if o.Width == "" {
		o.Width = "1000px"
	}
	if o.Height == "" {
		o.Height = "700px"
	}

	surface := charts.NewSurface3D()
	surface.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "CSI Amplitude Surface",
			Width:      o.Width,
			Height:     o.Height,
			AssetsHost: o.AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("CSI Amplitude Surface Plot for Tag %d", o.Tag),
			Subtitle: o.Subtitle,
		}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "Timestamp", Type: "value"}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Subcarrier Index", Type: "value"}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Amplitude", Type: "value"}),
		charts.WithGrid3DOpts(opts.Grid3D{BoxWidth: 200, BoxDepth: 100}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	surface.AddSeries("amplitude", data)

	return surface.Render(w)
}
