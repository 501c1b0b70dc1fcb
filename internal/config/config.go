package config

import (
	"encoding/json"
	"os"
	"time"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{}
}

// Load configuration file in json format
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return err
	}
	c.applyDefaults()
	return nil
}

// Duration fields are configured as bare seconds in the file. Redis
// timeouts are scaled where they are consumed; everything else is scaled
// here before defaults are applied.
func (c *Config) applyDefaults() {
	c.Server.ReadTimeout *= time.Second
	c.Server.WriteTimeout *= time.Second
	c.Pipeline.BackoffBase *= time.Second
	c.Pipeline.BlockTimeout *= time.Second
	c.Pipeline.JobTimeout *= time.Second
	c.Pipeline.StallMinIdle *= time.Second
	c.CDN.URLTTL *= time.Second
	c.CDN.CacheTTL *= time.Second

	if c.Pipeline.Stream == "" {
		c.Pipeline.Stream = "media:derive"
	}
	if c.Pipeline.Group == "" {
		c.Pipeline.Group = "media-workers"
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.BackoffBase <= 0 {
		c.Pipeline.BackoffBase = 2 * time.Second
	}
	if c.Pipeline.JobTimeout <= 0 {
		c.Pipeline.JobTimeout = 60 * time.Second
	}
	if c.Pipeline.StallMinIdle <= 0 {
		c.Pipeline.StallMinIdle = 30 * time.Second
	}
	if c.Pipeline.RetainCompleted <= 0 {
		c.Pipeline.RetainCompleted = 200
	}
	if c.Pipeline.RetainFailed <= 0 {
		c.Pipeline.RetainFailed = 200
	}
	if c.Upload.QuickMaxWidth <= 0 {
		c.Upload.QuickMaxWidth = 1280
	}
	if c.Upload.MaxRequestBodyMB <= 0 {
		c.Upload.MaxRequestBodyMB = 25
	}
	if c.Upload.MaxMultipartMemoryMB <= 0 {
		c.Upload.MaxMultipartMemoryMB = 10
	}
	if c.CDN.URLTTL <= 0 {
		c.CDN.URLTTL = 24 * time.Hour
	}
}
