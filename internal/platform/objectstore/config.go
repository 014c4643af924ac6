package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seclist-labs/seclist-go/internal/platform/env"
)

type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	BucketReadmes   string
	BucketSummaries string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("SECLIST_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:        env.String("SECLIST_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:       env.String("SECLIST_MINIO_ACCESS_KEY", "seclist"),
		SecretKey:       env.String("SECLIST_MINIO_SECRET_KEY", "seclistminio"),
		Region:          env.String("SECLIST_MINIO_REGION", "us-east-1"),
		UseSSL:          useSSL,
		BucketReadmes:   env.String("SECLIST_MINIO_BUCKET_READMES", "readmes"),
		BucketSummaries: env.String("SECLIST_MINIO_BUCKET_SUMMARIES", "summaries"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketReadmes) == "" {
		return errors.New("readmes bucket is required")
	}
	if strings.TrimSpace(c.BucketSummaries) == "" {
		return errors.New("summaries bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
