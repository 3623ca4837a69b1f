package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/csi.monitor/internal/api"
	"github.com/banshee-data/csi.monitor/internal/config"
	"github.com/banshee-data/csi.monitor/internal/csi/network"
	"github.com/banshee-data/csi.monitor/internal/csi/pipeline"
	"github.com/banshee-data/csi.monitor/internal/csvlog"
	"github.com/banshee-data/csi.monitor/internal/db"
	"github.com/banshee-data/csi.monitor/internal/fsutil"
	"github.com/banshee-data/csi.monitor/internal/monitoring"
	"github.com/banshee-data/csi.monitor/internal/render"
	"github.com/banshee-data/csi.monitor/internal/serialmux"
	"github.com/banshee-data/csi.monitor/internal/timeutil"
)

// app owns the sinks shared by every transport and the per-transport
// pipelines built on top of them.
type app struct {
	cfg     *config.MonitorConfig
	reg     *prometheus.Registry
	metrics *monitoring.IngestMetrics
	clock   timeutil.Clock

	db  *db.DB
	csv *csvlog.Writer

	mu       sync.Mutex
	sessions []string
	sources  []api.Source
}

func newApp(cfg *config.MonitorConfig) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &app{
		cfg:     cfg,
		reg:     reg,
		metrics: monitoring.NewIngestMetrics(reg),
		clock:   timeutil.RealClock{},
	}

	if path := cfg.GetCSVPath(); path != "" {
		w, err := csvlog.NewWriter(fsutil.OSFileSystem{}, path)
		if err != nil {
			return nil, err
		}
		a.csv = w
		log.Printf("appending accepted records to %s", path)
	}
	if path := cfg.GetDBPath(); path != "" {
		d, err := db.NewDB(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = d
		log.Printf("storing accepted records in %s", path)
	}
	return a, nil
}

// addPipeline builds the pipeline for one transport. source describes where
// its data comes from and is stored with the database session.
func (a *app) addPipeline(ctx context.Context, transport, source string, resolve pipeline.TagResolver) (*pipeline.Pipeline, error) {
	var sinks pipeline.MultiPersister
	if a.csv != nil {
		sinks = append(sinks, a.csv)
	}
	if a.db != nil {
		id, err := a.db.StartSession(ctx, db.Session{
			Transport:      transport,
			Source:         source,
			ExpectedLength: a.cfg.GetExpectedLength(),
			TargetTag:      a.cfg.GetTargetTag(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start %s session: %w", transport, err)
		}
		log.Printf("%s session %s started", transport, id)
		sinks = append(sinks, a.db.Persister(id))
		a.mu.Lock()
		a.sessions = append(a.sessions, id)
		a.mu.Unlock()
	}

	latest := render.NewLatest()
	cfg := pipeline.Config{
		Transport:      transport,
		ExpectedLength: a.cfg.GetExpectedLength(),
		MaxFrames:      a.cfg.GetMaxFrames(),
		TargetTag:      a.cfg.GetTargetTag(),
		Renderer:       latest,
		Stats:          pipeline.NewStats(transport, a.metrics, a.clock),
		Clock:          a.clock,
		ResolveTag:     resolve,
	}
	if len(sinks) > 0 {
		cfg.Persister = sinks
	}
	p := pipeline.New(cfg)

	a.mu.Lock()
	a.sources = append(a.sources, api.Source{Pipeline: p, Latest: latest})
	a.mu.Unlock()
	return p, nil
}

// tagResolver maps binary frames to tags by sender address when source_tags
// is configured. A nil resolver lets the pipeline stamp the target tag.
func (a *app) tagResolver() (pipeline.TagResolver, error) {
	tags, err := a.cfg.GetSourceTags()
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return pipeline.StaticTags(tags, a.cfg.GetUnmappedTag()), nil
}

// runSerial starts the mux monitor and the pipeline feeding from it.
func (a *app) runSerial(ctx context.Context, wg *sync.WaitGroup, mux serialmux.SerialMuxInterface, source string) error {
	p, err := a.addPipeline(ctx, "serial", source, nil)
	if err != nil {
		return err
	}

	monitoring.RegisterSerialCounters(a.reg, func() (uint64, uint64) {
		st := mux.Stats()
		return st.Lines, st.Dropped
	})

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("serial monitor routine terminated")
	}()

	a.runStats(ctx, wg, p)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.RunSerial(ctx, mux, p); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial pipeline stopped: %v", err)
		}
		log.Print("serial pipeline routine terminated")
	}()
	return nil
}

func (a *app) runUDP(ctx context.Context, wg *sync.WaitGroup) error {
	resolve, err := a.tagResolver()
	if err != nil {
		return err
	}
	addr := a.cfg.GetUDPListen()
	p, err := a.addPipeline(ctx, "udp", addr, resolve)
	if err != nil {
		return err
	}
	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address: addr,
		RcvBuf:  a.cfg.GetUDPRcvBuf(),
		Format:  a.cfg.GetUDPFormat(),
		Handler: p,
	})

	a.runStats(ctx, wg, p)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil {
			log.Printf("UDP listener stopped: %v", err)
		}
		log.Print("UDP listener routine terminated")
	}()
	return nil
}

// runReplay feeds a capture through its own pipeline once. The buffer stays
// available over HTTP after the replay finishes.
func (a *app) runReplay(ctx context.Context, wg *sync.WaitGroup) error {
	resolve, err := a.tagResolver()
	if err != nil {
		return err
	}
	path := a.cfg.GetPCAPFile()
	p, err := a.addPipeline(ctx, "pcap", path, resolve)
	if err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		stats, err := network.ReadPCAPFile(ctx, path, a.cfg.GetPCAPPort(), a.cfg.GetUDPFormat(), p)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("PCAP replay failed: %v", err)
			return
		}
		log.Printf("PCAP replay of %s: %d packets, %d matched, %d rejected", path, stats.Packets, stats.Matched, stats.Errors)
		p.Stats().LogStats(a.clock.Now())
	}()
	return nil
}

func (a *app) runStats(ctx context.Context, wg *sync.WaitGroup, p *pipeline.Pipeline) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Stats().RunStatsLogger(ctx, a.clock, a.cfg.GetStatsInterval())
	}()
}

// handler assembles the HTTP surface: the API, the serial debug console and
// the database console when those are present.
func (a *app) handler(mux serialmux.SerialMuxInterface) (http.Handler, error) {
	a.mu.Lock()
	sources := append([]api.Source(nil), a.sources...)
	a.mu.Unlock()

	httpMux := api.NewServer(api.ServerConfig{
		Sources:    sources,
		DB:         a.db,
		Gatherer:   a.reg,
		AssetsHost: a.cfg.GetAssetsHost(),
	}).ServeMux()

	if mux != nil {
		mux.AttachAdminRoutes(httpMux)
	}
	if a.db != nil {
		if err := a.db.AttachAdminRoutes(httpMux); err != nil {
			return nil, err
		}
	}
	return api.LoggingMiddleware(httpMux), nil
}

// Close ends the database sessions and closes the sinks.
func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, id := range a.sessions {
			if err := a.db.EndSession(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
		errs = append(errs, a.db.Close())
	}
	if a.csv != nil {
		errs = append(errs, a.csv.Close())
	}
	return errors.Join(errs...)
}

// devFixtureLines reads the text packets replayed in dev mode, skipping
// blank lines and # comments.
func devFixtureLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixtures file %s has no packets", path)
	}
	return lines, nil
}
