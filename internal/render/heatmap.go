package render

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// HeatmapOptions controls the PNG heatmap.
type HeatmapOptions struct {
	Tag    uint64
	Width  vg.Length
	Height vg.Length
}

// frameGrid adapts a frames×subcarriers matrix to plotter.GridXYZ with
// frames along X and subcarriers along Y.
type frameGrid struct {
	m *mat.Dense
}

func (g frameGrid) Dims() (c, r int) {
	rows, cols := g.m.Dims()
	return rows, cols
}

func (g frameGrid) Z(c, r int) float64 { return g.m.At(c, r) }
func (g frameGrid) X(c int) float64    { return float64(c) }
func (g frameGrid) Y(r int) float64    { return float64(r) }

// WriteHeatmapPNG renders records as a frame-by-subcarrier heatmap.
func WriteHeatmapPNG(w io.Writer, records []csi.Record, o HeatmapOptions) error {
	m, err := Matrix(records)
	if err != nil {
		return err
	}
	if o.Width <= 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 5 * vg.Inch
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("CSI amplitude, tag %d", o.Tag)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Subcarrier Index"

	hm := plotter.NewHeatMap(frameGrid{m}, palette.Heat(64, 1))
	hm.Rasterized = true
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	wt, err := p.WriterTo(o.Width, o.Height, "png")
	if err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
