// Command csi-plot renders a CSV log written by csimon: the amplitude
// surface as HTML, a heatmap as PNG and optional per-subcarrier statistics.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/csi.monitor/internal/csi"
	"github.com/banshee-data/csi.monitor/internal/csvlog"
	"github.com/banshee-data/csi.monitor/internal/fsutil"
	"github.com/banshee-data/csi.monitor/internal/render"
	"github.com/banshee-data/csi.monitor/internal/security"
)

// Config holds the plotting options.
type Config struct {
	CSVFile    string
	Tag        uint64
	MaxFrames  int
	HTMLOut    string
	PNGOut     string
	AssetsHost string
	Stats      bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.CSVFile, "csv", "", "CSV log to plot (required)")
	flag.Uint64Var(&cfg.Tag, "tag", 0, "Tag to plot")
	flag.IntVar(&cfg.MaxFrames, "max-frames", 100, "Plot only the most recent N records (0 for all)")
	flag.StringVar(&cfg.HTMLOut, "html", "", "Surface chart output (default <csv>-tag<N>.html, \"-\" to skip)")
	flag.StringVar(&cfg.PNGOut, "png", "", "Heatmap output (default <csv>-tag<N>.png, \"-\" to skip)")
	flag.StringVar(&cfg.AssetsHost, "assets-host", "", "Host for the echarts scripts (default CDN)")
	flag.BoolVar(&cfg.Stats, "stats", false, "Print per-subcarrier statistics as JSON")
	flag.Parse()

	if cfg.CSVFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(cfg Config, stdout io.Writer) error {
	all, skipped, err := csvlog.ReadFile(fsutil.OSFileSystem{}, cfg.CSVFile)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Printf("skipped %d malformed rows in %s", skipped, cfg.CSVFile)
	}

	records := selectRecords(all, cfg.Tag, cfg.MaxFrames)
	if len(records) == 0 {
		return fmt.Errorf("no records for tag %d in %s", cfg.Tag, cfg.CSVFile)
	}
	log.Printf("plotting %d of %d records for tag %d", len(records), len(all), cfg.Tag)

	base := strings.TrimSuffix(cfg.CSVFile, filepath.Ext(cfg.CSVFile)) + fmt.Sprintf("-tag%d", cfg.Tag)
	htmlOut := cfg.HTMLOut
	if htmlOut == "" {
		htmlOut = base + ".html"
	}
	pngOut := cfg.PNGOut
	if pngOut == "" {
		pngOut = base + ".png"
	}

	for _, out := range []string{htmlOut, pngOut} {
		if out == "-" {
			continue
		}
		if err := security.ValidateOutputPath(out, filepath.Dir(cfg.CSVFile)); err != nil {
			return err
		}
	}

	if htmlOut != "-" {
		subtitle := fmt.Sprintf("%s, %d frames", filepath.Base(cfg.CSVFile), len(records))
		if err := writeFile(htmlOut, func(w io.Writer) error {
			return render.WriteSurfaceHTML(w, records, render.SurfaceOptions{
				Tag:        cfg.Tag,
				Subtitle:   subtitle,
				AssetsHost: cfg.AssetsHost,
			})
		}); err != nil {
			return err
		}
		log.Printf("wrote %s", htmlOut)
	}

	if pngOut != "-" {
		if err := writeFile(pngOut, func(w io.Writer) error {
			return render.WriteHeatmapPNG(w, records, render.HeatmapOptions{Tag: cfg.Tag})
		}); err != nil {
			return err
		}
		log.Printf("wrote %s", pngOut)
	}

	if cfg.Stats {
		stats, err := render.SubcarrierStats(records)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return err
		}
	}
	return nil
}

// selectRecords keeps the records carrying tag, then the last maxFrames of
// them when maxFrames is positive.
func selectRecords(all []csi.Record, tag uint64, maxFrames int) []csi.Record {
	var out []csi.Record
	for _, r := range all {
		if r.Tag == tag {
			out = append(out, r)
		}
	}
	if maxFrames > 0 && len(out) > maxFrames {
		out = out[len(out)-maxFrames:]
	}
	return out
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}
