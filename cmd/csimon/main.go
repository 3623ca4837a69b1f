// Command csimon ingests CSI telemetry from a serial-attached node, a UDP
// socket or a packet capture, keeps the latest records for one tag and
// serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/csi.monitor/internal/config"
	"github.com/banshee-data/csi.monitor/internal/serialmux"
	"github.com/banshee-data/csi.monitor/internal/version"
)

func main() {
	flags := registerFlags(flag.CommandLine)
	flag.Parse()

	if *flags.showVersion {
		fmt.Println(version.String())
		return
	}
	if *flags.listSerial {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := flags.resolve()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

// printPorts lists serial devices, one per line.
func printPorts(w io.Writer) error {
	ports, err := serialmux.ListPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

func run(ctx context.Context, cfg *config.MonitorConfig, flags *cliFlags) error {
	var serialMux serialmux.SerialMuxInterface
	var serialSource string
	switch {
	case *flags.dev:
		lines, err := devFixtureLines(*flags.devFixtures)
		if err != nil {
			return err
		}
		serialMux = serialmux.NewMockSerialMux(lines, *flags.devInterval)
		serialSource = "dev:" + *flags.devFixtures
		log.Printf("dev mode: replaying %d packets from %s", len(lines), *flags.devFixtures)
	case cfg.GetSerialPort() != "":
		opts := cfg.GetPortOptions()
		m, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), opts)
		if err != nil {
			return fmt.Errorf("failed to open serial port: %w", err)
		}
		serialMux = m
		serialSource = cfg.GetSerialPort()
		log.Printf("reading %s (%s)", serialSource, opts)
	}

	if serialMux == nil && cfg.GetUDPListen() == "" && cfg.GetPCAPFile() == "" {
		return errors.New("no transport configured: set -serial, -udp, -pcap or -dev")
	}
	log.Printf("csimon %s: keeping tag %d, %d amplitudes per record, last %d records",
		version.Version, cfg.GetTargetTag(), cfg.GetExpectedLength(), cfg.GetMaxFrames())

	closeSerial := sync.OnceFunc(func() {
		if serialMux != nil {
			serialMux.Close()
		}
	})
	defer closeSerial()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("failed to close sinks: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if serialMux != nil {
		if err := a.runSerial(ctx, &wg, serialMux, serialSource); err != nil {
			return err
		}
	}
	if cfg.GetUDPListen() != "" {
		if err := a.runUDP(ctx, &wg); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}
	if cfg.GetPCAPFile() != "" {
		if err := a.runReplay(ctx, &wg); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	h, err := a.handler(serialMux)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	err = serveHTTP(ctx, cfg.GetListen(), h)

	// stop every transport before the sinks close
	cancel()
	closeSerial()
	wg.Wait()
	return err
}

// serveHTTP serves h until ctx is done, then shuts the server down.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}
