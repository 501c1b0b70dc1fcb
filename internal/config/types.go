package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Upload   UploadConfig   `json:"upload"`
	Database Database       `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	R2       R2Config       `json:"r2"`
	CDN      CDNConfig      `json:"cdn"`
	Pipeline PipelineConfig `json:"pipeline"`
	Sentry   SentryConfig   `json:"sentry"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
	QuickMaxWidth        int   `json:"quick_max_width"` // single-pass strategy width ceiling
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"`
}

// CDNConfig drives signed delivery URLs. PublicBaseURL is the unsigned
// direct-storage fallback used when signing is unavailable.
type CDNConfig struct {
	Domain         string        `json:"domain"`
	KeyPairID      string        `json:"key_pair_id"`
	PrivateKeyPath string        `json:"private_key_path"`
	PublicBaseURL  string        `json:"public_base_url"`
	URLTTL         time.Duration `json:"url_ttl"`       // signed URL validity from resolution time
	CacheTTL       time.Duration `json:"cache_ttl"`     // resolved-URL cache, well below URLTTL
}

// PipelineConfig tunes the derivative job queue.
type PipelineConfig struct {
	Stream          string        `json:"stream"`           // redis stream name prefix
	Group           string        `json:"group"`            // consumer group name
	Consumer        string        `json:"consumer"`         // consumer name within the group
	Workers         int           `json:"workers"`          // number of concurrent goroutines
	MaxAttempts     int           `json:"max_attempts"`     // attempts before a job is left failed
	MaxLen          int64         `json:"max_len"`          // stream max length before trim
	BackoffBase     time.Duration `json:"backoff_base"`     // base retry delay
	BlockTimeout    time.Duration `json:"block_timeout"`    // XREADGROUP block timeout
	JobTimeout      time.Duration `json:"job_timeout"`      // hard per-job deadline
	StallMinIdle    time.Duration `json:"stall_min_idle"`   // idle time before a claimed entry counts as stalled
	VariantParallel int           `json:"variant_parallel"` // per-job variant concurrency
	RetainCompleted int           `json:"retain_completed"` // completed jobs kept for audit
	RetainFailed    int           `json:"retain_failed"`    // failed jobs kept for audit
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
