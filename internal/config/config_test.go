package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := NewConfig()
	c.applyDefaults()

	// An empty config file must still yield a usable upload surface.
	require.Equal(t, int64(25), c.Upload.MaxRequestBodyMB)
	require.Equal(t, int64(10), c.Upload.MaxMultipartMemoryMB)
	require.Equal(t, 1280, c.Upload.QuickMaxWidth)

	require.Equal(t, "media:derive", c.Pipeline.Stream)
	require.Equal(t, "media-workers", c.Pipeline.Group)
	require.Equal(t, 4, c.Pipeline.Workers)
	require.Equal(t, 3, c.Pipeline.MaxAttempts)
	require.Equal(t, 2*time.Second, c.Pipeline.BackoffBase)
	require.Equal(t, 60*time.Second, c.Pipeline.JobTimeout)
	require.Equal(t, 30*time.Second, c.Pipeline.StallMinIdle)
	require.Equal(t, 24*time.Hour, c.CDN.URLTTL)
}

func TestApplyDefaultsScalesSeconds(t *testing.T) {
	c := NewConfig()
	c.Server.ReadTimeout = 15
	c.Pipeline.BackoffBase = 2
	c.Pipeline.JobTimeout = 90
	c.Pipeline.StallMinIdle = 45
	c.CDN.URLTTL = 3600
	c.CDN.CacheTTL = 300
	c.applyDefaults()

	// Duration fields arrive as bare seconds from the JSON file.
	require.Equal(t, 15*time.Second, c.Server.ReadTimeout)
	require.Equal(t, 2*time.Second, c.Pipeline.BackoffBase)
	require.Equal(t, 90*time.Second, c.Pipeline.JobTimeout)
	require.Equal(t, 45*time.Second, c.Pipeline.StallMinIdle)
	require.Equal(t, 3600*time.Second, c.CDN.URLTTL)
	require.Equal(t, 300*time.Second, c.CDN.CacheTTL)
}
