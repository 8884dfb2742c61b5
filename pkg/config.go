package daq

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// DigitizerConfig identifies one digitizer in the top-level configuration.
type DigitizerConfig struct {
	LinkNumber int    `json:"usb_link"`
	ConetNode  int    `json:"conet_node"`
	ConfigFile string `json:"config_file"`
	Enabled    bool   `json:"enabled"`
}

// DAQSection holds the acquisition-wide settings.
type DAQSection struct {
	Digitizers         []DigitizerConfig `json:"digitizers"`
	OutputDirectory    string            `json:"output_directory"`
	MaxEvents          uint64            `json:"max_events"`           // 0 = unlimited
	RunDurationSeconds int               `json:"run_duration_seconds"` // 0 = unlimited
	SyncTrigger        string            `json:"sync_trigger"`         // external or software
	RateWindowSeconds  float64           `json:"rate_window_seconds"`
	Simulate           bool              `json:"simulate"`
}

// MonitorConfig configures the best-effort display queue.
type MonitorConfig struct {
	Enabled          bool  `json:"enabled"`
	UpdateIntervalMs int   `json:"update_interval_ms"`
	DisplayChannels  []int `json:"display_channels"`
	DisplayDigitizer int   `json:"display_digitizer"`
	PlotSamples      int   `json:"plot_samples"`
	QueueSize        int   `json:"queue_size"`
}

// LoggingConfig configures log level and destinations.
type LoggingConfig struct {
	Level   string `json:"level"`
	File    string `json:"file"`
	Console bool   `json:"console"`
}

// DatabaseConfig configures the optional run bookkeeping database.
type DatabaseConfig struct {
	NoDB   bool   `json:"no_db"`
	Host   string `json:"host"`
	User   string `json:"user"`
	Passwd string `json:"pass"`
	DBName string `json:"dbname"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `json:"addr"` // empty disables the listener
}

// Configuration is the top-level daq_config.json.
type Configuration struct {
	DAQ      DAQSection     `json:"daq"`
	Monitor  MonitorConfig  `json:"monitor"`
	Logging  LoggingConfig  `json:"logging"`
	Database DatabaseConfig `json:"database"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// LoadConfiguration reads the configuration file over a fully defaulted
// Configuration, so absent fields keep their defaults.
func LoadConfiguration(filename string) (Configuration, error) {
	config := defaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err = json.Unmarshal(data, &config); err != nil {
		return config, err
	}
	if err = config.validate(); err != nil {
		return config, err
	}
	return config, nil
}

func defaultConfiguration() Configuration {
	var config Configuration
	config.DAQ.OutputDirectory = "./data/run_001"
	config.DAQ.SyncTrigger = "external"
	config.DAQ.RateWindowSeconds = 10.0
	config.Monitor.Enabled = true
	config.Monitor.UpdateIntervalMs = 500
	config.Monitor.DisplayChannels = []int{0, 1, 8, 9}
	config.Monitor.PlotSamples = 1024
	config.Monitor.QueueSize = 64
	config.Logging.Level = "INFO"
	config.Logging.File = "daq.log"
	config.Logging.Console = true
	config.Database.NoDB = true
	config.Database.Host = "localhost"
	config.Database.User = "daqwriter"
	config.Database.DBName = "DAQRUNS"
	return config
}

func (c *Configuration) validate() error {
	enabled := c.EnabledDigitizers()
	if len(enabled) == 0 {
		return fmt.Errorf("no digitizers enabled in configuration")
	}

	links := make(map[int]bool)
	for _, d := range enabled {
		if links[d.LinkNumber] {
			return fmt.Errorf("duplicate link number %d in configuration", d.LinkNumber)
		}
		links[d.LinkNumber] = true
	}

	if c.DAQ.SyncTrigger != "external" && c.DAQ.SyncTrigger != "software" {
		return fmt.Errorf("invalid sync_trigger %q: must be external or software", c.DAQ.SyncTrigger)
	}
	if c.Monitor.DisplayDigitizer >= len(c.DAQ.Digitizers) {
		return fmt.Errorf("display_digitizer %d exceeds number of digitizers %d",
			c.Monitor.DisplayDigitizer, len(c.DAQ.Digitizers))
	}
	return nil
}

// EnabledDigitizers returns the digitizers taking part in the run.
func (c *Configuration) EnabledDigitizers() []DigitizerConfig {
	var out []DigitizerConfig
	for _, d := range c.DAQ.Digitizers {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Save writes the configuration as indented JSON.
func (c *Configuration) Save(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// ExampleConfiguration is the template written by --create-config.
func ExampleConfiguration() Configuration {
	config := defaultConfiguration()
	config.DAQ.Digitizers = []DigitizerConfig{
		{LinkNumber: 0, ConetNode: 0, ConfigFile: "WaveDumpConfig_USB0.txt", Enabled: true},
		{LinkNumber: 1, ConetNode: 0, ConfigFile: "WaveDumpConfig_USB1.txt", Enabled: true},
	}
	return config
}

// PrintConfiguration logs the effective settings at run start, so the log
// file records the exact conditions of the run.
func PrintConfiguration(config Configuration, logger *slog.Logger) {
	logger.Info(fmt.Sprintf("Output directory: %s", config.DAQ.OutputDirectory), "module", "config")
	logger.Info(fmt.Sprintf("Sync trigger: %s", config.DAQ.SyncTrigger), "module", "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.DAQ.MaxEvents), "module", "config")
	logger.Info(fmt.Sprintf("Run duration: %ds", config.DAQ.RunDurationSeconds), "module", "config")
	logger.Info(fmt.Sprintf("Rate window: %.1fs", config.DAQ.RateWindowSeconds), "module", "config")
	logger.Info(fmt.Sprintf("Simulate: %t", config.DAQ.Simulate), "module", "config")
	for i, d := range config.DAQ.Digitizers {
		logger.Info(fmt.Sprintf("Digitizer %d: link %d, conet %d, config %q, enabled %t",
			i, d.LinkNumber, d.ConetNode, d.ConfigFile, d.Enabled), "module", "config")
	}
	logger.Info(fmt.Sprintf("Monitor enabled: %t", config.Monitor.Enabled), "module", "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.Database.NoDB), "module", "config")
	logger.Info(fmt.Sprintf("Metrics addr: %s", config.Metrics.Addr), "module", "config")
}
