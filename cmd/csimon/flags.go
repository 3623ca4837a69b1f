package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/banshee-data/csi.monitor/internal/config"
	"github.com/banshee-data/csi.monitor/internal/serialmux"
)

// cliFlags holds every command-line option. Flags the user sets explicitly
// override the config file; the rest leave it untouched.
type cliFlags struct {
	fs *flag.FlagSet

	configFile     *string
	dev            *bool
	devFixtures    *string
	devInterval    *time.Duration
	showVersion    *bool
	listSerial     *bool
	serialPort     *string
	baudRate       *int
	framing        *string
	udpListen      *string
	udpFormat      *string
	pcapFile       *string
	pcapPort       *int
	tag            *uint64
	expectedLength *int
	maxFrames      *int
	csvPath        *string
	dbPath         *string
	listen         *string
	statsInterval  *time.Duration
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		fs:             fs,
		configFile:     fs.String("config", "", "Path to a .json or .yaml config file"),
		dev:            fs.Bool("dev", false, "Replay the fixtures file through a mock serial port instead of a device"),
		devFixtures:    fs.String("dev-fixtures", "fixtures.txt", "Text packets replayed in dev mode, one per line"),
		devInterval:    fs.Duration("dev-interval", 50*time.Millisecond, "Delay between replayed lines in dev mode"),
		showVersion:    fs.Bool("version", false, "Print version and exit"),
		listSerial:     fs.Bool("list-serial", false, "List serial ports and exit"),
		serialPort:     fs.String("serial", "", "Serial device to read text packets from, e.g. /dev/ttyUSB0, or auto"),
		baudRate:       fs.Int("baud", 0, "Serial baud rate (default 115200)"),
		framing:        fs.String("serial-framing", "", "Serial data bits, parity and stop bits, e.g. 8N1"),
		udpListen:      fs.String("udp", "", "UDP listen address, e.g. "+config.DefaultUDPListen),
		udpFormat:      fs.String("udp-format", "", "UDP payload format: binary or text (default binary)"),
		pcapFile:       fs.String("pcap", "", "Replay UDP CSI datagrams from a pcap or pcapng capture"),
		pcapPort:       fs.Int("pcap-port", config.DefaultUDPPort, "UDP destination port to replay from the capture (0 for all)"),
		tag:            fs.Uint64("tag", 0, "Tag whose records are kept"),
		expectedLength: fs.Int("expected-length", config.DefaultExpectedLength, "Amplitudes per record"),
		maxFrames:      fs.Int("max-frames", config.DefaultMaxFrames, "Records kept in each transport's buffer"),
		csvPath:        fs.String("csv", "", "Append accepted records to this CSV file"),
		dbPath:         fs.String("db", "", "Store accepted records in this SQLite database"),
		listen:         fs.String("listen", config.DefaultListen, "HTTP listen address"),
		statsInterval:  fs.Duration("stats-interval", config.DefaultStatsInterval, "Interval between ingest statistics log lines"),
	}
}

// resolve loads the config file, if any, and overlays the flags that were
// set on the command line.
func (f *cliFlags) resolve() (*config.MonitorConfig, error) {
	cfg := config.EmptyMonitorConfig()
	if *f.configFile != "" {
		loaded, err := config.LoadMonitorConfig(*f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var framingErr error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "serial-framing":
			o, err := serialmux.PortOptions{}.ParseFraming(*f.framing)
			if err != nil {
				framingErr = err
				return
			}
			cfg.DataBits, cfg.StopBits, cfg.Parity = &o.DataBits, &o.StopBits, &o.Parity
		case "serial":
			cfg.SerialPort = f.serialPort
		case "baud":
			cfg.BaudRate = f.baudRate
		case "udp":
			cfg.UDPListen = f.udpListen
		case "udp-format":
			cfg.UDPFormat = f.udpFormat
		case "pcap":
			cfg.PCAPFile = f.pcapFile
		case "pcap-port":
			cfg.PCAPPort = f.pcapPort
		case "tag":
			cfg.TargetTag = f.tag
		case "expected-length":
			cfg.ExpectedLength = f.expectedLength
		case "max-frames":
			cfg.MaxFrames = f.maxFrames
		case "csv":
			cfg.CSVPath = f.csvPath
		case "db":
			cfg.DBPath = f.dbPath
		case "listen":
			cfg.Listen = f.listen
		case "stats-interval":
			s := f.statsInterval.String()
			cfg.StatsInterval = &s
		}
	})

	if framingErr != nil {
		return nil, fmt.Errorf("invalid flags: %w", framingErr)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
