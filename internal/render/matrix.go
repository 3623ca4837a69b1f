package render

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// ErrNoRecords is returned when there is nothing to draw.
var ErrNoRecords = errors.New("render: no records")

// Matrix lays records out as a frames×subcarriers matrix, oldest frame in
// row 0. Rows shorter than the widest record are zero-padded.
func Matrix(records []csi.Record) (*mat.Dense, error) {
	cols := 0
	for _, r := range records {
		cols = max(cols, len(r.Amplitudes))
	}
	if len(records) == 0 || cols == 0 {
		return nil, ErrNoRecords
	}

	m := mat.NewDense(len(records), cols, nil)
	for i, r := range records {
		for j, a := range r.Amplitudes {
			m.Set(i, j, float64(a))
		}
	}
	return m, nil
}

// SubcarrierStat summarises one subcarrier across the buffered frames.
type SubcarrierStat struct {
	Index  int     `json:"index"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SubcarrierStats computes per-subcarrier statistics over records.
func SubcarrierStats(records []csi.Record) ([]SubcarrierStat, error) {
	m, err := Matrix(records)
	if err != nil {
		return nil, err
	}
	_, cols := m.Dims()
	out := make([]SubcarrierStat, cols)
	col := make([]float64, len(records))
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean, std := stat.MeanStdDev(col, nil)
		if len(col) < 2 {
			std = 0
		}
		out[j] = SubcarrierStat{
			Index:  j,
			Mean:   mean,
			StdDev: std,
			Min:    floats.Min(col),
			Max:    floats.Max(col),
		}
	}
	return out, nil
}

// amplitudeRange returns the smallest and largest value in m.
func amplitudeRange(m *mat.Dense) (lo, hi float64) {
	return mat.Min(m), mat.Max(m)
}
