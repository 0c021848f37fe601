// Package config reads chunkfetch settings from environment variables and an optional .env file.
package config

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-chunkfetch/remote"
	"github.com/bitrise-io/go-chunkfetch/transfer"
	"github.com/bitrise-io/go-utils/v2/env"
)

// Config is the environment driven configuration of a fetch.
type Config struct {
	Workers          int           `env:"CHUNKFETCH_WORKERS,range[1..1024]"`
	ChunkSize        ByteSize      `env:"CHUNKFETCH_CHUNK_SIZE"`
	MaxRetries       int           `env:"CHUNKFETCH_MAX_RETRIES,range[0..100]"`
	RetryWait        time.Duration `env:"CHUNKFETCH_RETRY_WAIT"`
	MaxBuffered      int           `env:"CHUNKFETCH_MAX_BUFFERED,range[0..1000000]"`
	ProgressInterval time.Duration `env:"CHUNKFETCH_PROGRESS_INTERVAL"`

	AWSRegion          string `env:"CHUNKFETCH_AWS_REGION"`
	AWSAccessKeyID     string `env:"CHUNKFETCH_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey Secret `env:"CHUNKFETCH_AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string `env:"CHUNKFETCH_S3_ENDPOINT"`

	HTTPToken Secret `env:"CHUNKFETCH_HTTP_TOKEN"`

	BytestreamToken    Secret `env:"CHUNKFETCH_BYTESTREAM_TOKEN"`
	BytestreamInsecure bool   `env:"CHUNKFETCH_BYTESTREAM_INSECURE"`
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Workers:          transfer.DefaultWorkers,
		ChunkSize:        transfer.DefaultChunkSize,
		MaxRetries:       transfer.DefaultMaxRetries,
		RetryWait:        transfer.DefaultRetryWait,
		ProgressInterval: transfer.DefaultProgressInterval,
	}
}

// Load parses the variables of envRepo on top of the defaults.
func Load(envRepo env.Repository) (Config, error) {
	c := Default()
	if err := NewInputParser(envRepo).Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse configuration: %w", err)
	}
	if c.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("parse configuration: CHUNKFETCH_CHUNK_SIZE: %w: must be positive", ErrOutOfRange)
	}
	return c, nil
}

// TransferConfig returns the engine settings.
func (c Config) TransferConfig(progress bool) transfer.Config {
	return transfer.Config{
		Workers:           c.Workers,
		ChunkSize:         int64(c.ChunkSize),
		MaxRetries:        c.MaxRetries,
		RetryWait:         c.RetryWait,
		MaxBufferedChunks: c.MaxBuffered,
		Progress:          progress,
		ProgressInterval:  c.ProgressInterval,
	}
}

// Credentials returns the backend settings.
func (c Config) Credentials() remote.Credentials {
	return remote.Credentials{
		AWSRegion:          c.AWSRegion,
		AWSAccessKeyID:     c.AWSAccessKeyID,
		AWSSecretAccessKey: string(c.AWSSecretAccessKey),
		S3Endpoint:         c.S3Endpoint,
		NumFullRetries:     c.MaxRetries,
		HTTPToken:          string(c.HTTPToken),
		BytestreamToken:    string(c.BytestreamToken),
		BytestreamInsecure: c.BytestreamInsecure,
	}
}
