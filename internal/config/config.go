// Package config loads the monitor's configuration file. Every field is
// optional; the Get* accessors supply defaults for anything omitted, so a
// partial file is always safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/csi.monitor/internal/csi"
	"github.com/banshee-data/csi.monitor/internal/csi/buffer"
	"github.com/banshee-data/csi.monitor/internal/csi/network"
	"github.com/banshee-data/csi.monitor/internal/csi/pipeline"
	"github.com/banshee-data/csi.monitor/internal/serialmux"
)

const (
	DefaultExpectedLength = pipeline.DefaultExpectedLength
	DefaultMaxFrames      = buffer.DefaultMaxFrames
	DefaultUDPPort        = 5000
	// DefaultUDPListen is the address suggested for -udp; UDP stays off
	// unless one is given.
	DefaultUDPListen     = ":5000"
	DefaultListen        = "localhost:8080"
	DefaultStatsInterval = time.Minute
)

// maxFileSize caps the config file read.
const maxFileSize = 1 * 1024 * 1024

// MonitorConfig is the root configuration. The same keys are accepted in
// JSON and YAML.
type MonitorConfig struct {
	// Parsing and buffering
	ExpectedLength *int    `json:"expected_length,omitempty" yaml:"expected_length,omitempty"`
	MaxFrames      *int    `json:"max_frames,omitempty" yaml:"max_frames,omitempty"`
	TargetTag      *uint64 `json:"target_tag,omitempty" yaml:"target_tag,omitempty"`

	// Serial transport
	SerialPort *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty" yaml:"parity,omitempty"`

	// UDP transport
	UDPListen *string `json:"udp_listen,omitempty" yaml:"udp_listen,omitempty"`
	UDPFormat *string `json:"udp_format,omitempty" yaml:"udp_format,omitempty"` // "binary" or "text"
	UDPRcvBuf *int    `json:"udp_rcv_buf,omitempty" yaml:"udp_rcv_buf,omitempty"`

	// SourceTags assigns tags to binary frames by sender MAC address.
	// Senders not listed get UnmappedTag.
	SourceTags  map[string]uint64 `json:"source_tags,omitempty" yaml:"source_tags,omitempty"`
	UnmappedTag *uint64           `json:"unmapped_tag,omitempty" yaml:"unmapped_tag,omitempty"`

	// Capture replay
	PCAPFile *string `json:"pcap_file,omitempty" yaml:"pcap_file,omitempty"`
	PCAPPort *int    `json:"pcap_port,omitempty" yaml:"pcap_port,omitempty"`

	// Sinks
	CSVPath *string `json:"csv_path,omitempty" yaml:"csv_path,omitempty"`
	DBPath  *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// HTTP and diagnostics
	Listen        *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	AssetsHost    *string `json:"assets_host,omitempty" yaml:"assets_host,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"` // duration string like "30s"
}

// EmptyMonitorConfig returns a MonitorConfig with all fields unset.
func EmptyMonitorConfig() *MonitorConfig {
	return &MonitorConfig{}
}

// LoadMonitorConfig loads a MonitorConfig from a .json, .yaml or .yml file.
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMonitorConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *MonitorConfig) Validate() error {
	if c.ExpectedLength != nil && *c.ExpectedLength <= 0 {
		return fmt.Errorf("expected_length must be positive, got %d", *c.ExpectedLength)
	}
	if c.MaxFrames != nil && *c.MaxFrames <= 0 {
		return fmt.Errorf("max_frames must be positive, got %d", *c.MaxFrames)
	}
	if c.UDPFormat != nil {
		if _, err := network.ParseFormat(*c.UDPFormat); err != nil {
			return err
		}
	}
	if c.UDPRcvBuf != nil && *c.UDPRcvBuf < 0 {
		return fmt.Errorf("udp_rcv_buf must be non-negative, got %d", *c.UDPRcvBuf)
	}
	if c.PCAPPort != nil && (*c.PCAPPort < 0 || *c.PCAPPort > 65535) {
		return fmt.Errorf("pcap_port must be between 0 and 65535, got %d", *c.PCAPPort)
	}
	if _, err := c.GetSourceTags(); err != nil {
		return err
	}
	if _, err := c.GetPortOptions().Normalise(); err != nil {
		return fmt.Errorf("serial options: %w", err)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("stats_interval must be positive, got %s", d)
		}
	}
	return nil
}

func (c *MonitorConfig) GetExpectedLength() int {
	if c.ExpectedLength == nil {
		return DefaultExpectedLength
	}
	return *c.ExpectedLength
}

func (c *MonitorConfig) GetMaxFrames() int {
	if c.MaxFrames == nil {
		return DefaultMaxFrames
	}
	return *c.MaxFrames
}

// GetTargetTag returns target_tag, defaulting to 0.
func (c *MonitorConfig) GetTargetTag() uint64 {
	if c.TargetTag == nil {
		return 0
	}
	return *c.TargetTag
}

// GetUnmappedTag returns the tag for binary frames from senders missing
// from source_tags. It defaults to the target tag.
func (c *MonitorConfig) GetUnmappedTag() uint64 {
	if c.UnmappedTag == nil {
		return c.GetTargetTag()
	}
	return *c.UnmappedTag
}

// GetSerialPort returns the serial device path; empty disables serial.
func (c *MonitorConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetPortOptions collects the serial line settings. Zero values are
// filled in by serialmux.PortOptions.Normalise.
func (c *MonitorConfig) GetPortOptions() serialmux.PortOptions {
	var o serialmux.PortOptions
	if c.BaudRate != nil {
		o.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		o.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		o.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		o.Parity = *c.Parity
	}
	return o
}

// GetUDPListen returns the UDP listen address; empty disables UDP.
func (c *MonitorConfig) GetUDPListen() string {
	if c.UDPListen == nil {
		return ""
	}
	return *c.UDPListen
}

func (c *MonitorConfig) GetUDPFormat() network.Format {
	if c.UDPFormat == nil {
		return network.FormatBinary
	}
	f, err := network.ParseFormat(*c.UDPFormat)
	if err != nil {
		return network.FormatBinary
	}
	return f
}

func (c *MonitorConfig) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return 0
	}
	return *c.UDPRcvBuf
}

// GetSourceTags parses the source_tags keys as MAC addresses.
func (c *MonitorConfig) GetSourceTags() (map[csi.SourceAddress]uint64, error) {
	tags := make(map[csi.SourceAddress]uint64, len(c.SourceTags))
	for k, tag := range c.SourceTags {
		addr, err := csi.ParseSourceAddress(k)
		if err != nil {
			return nil, fmt.Errorf("source_tags: %w", err)
		}
		tags[addr] = tag
	}
	return tags, nil
}

func (c *MonitorConfig) GetPCAPFile() string {
	if c.PCAPFile == nil {
		return ""
	}
	return *c.PCAPFile
}

func (c *MonitorConfig) GetPCAPPort() int {
	if c.PCAPPort == nil {
		return DefaultUDPPort
	}
	return *c.PCAPPort
}

func (c *MonitorConfig) GetCSVPath() string {
	if c.CSVPath == nil {
		return ""
	}
	return *c.CSVPath
}

func (c *MonitorConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

func (c *MonitorConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

func (c *MonitorConfig) GetAssetsHost() string {
	if c.AssetsHost == nil {
		return ""
	}
	return *c.AssetsHost
}

// GetStatsInterval parses and returns StatsInterval as a time.Duration.
func (c *MonitorConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return DefaultStatsInterval
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil || d <= 0 {
		return DefaultStatsInterval
	}
	return d
}
