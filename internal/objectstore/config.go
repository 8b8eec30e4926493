package objectstore

import (
	"errors"
	"net/url"

	"github.com/filepipe-io/filepipe/internal/config"
)

// Config validation errors.
var (
	ErrMissingEndpoint    = errors.New("object store endpoint is required")
	ErrMissingCredentials = errors.New("object store credentials are required")
	ErrInvalidEndpoint    = errors.New("object store endpoint is not a valid URL or host")
)

// Config holds connection settings for the MinIO/S3 object store.
type Config struct {
	// Endpoint is the store address, either a bare host:port or a full URL.
	// A https scheme forces TLS regardless of UseSSL.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// LoadConfig reads object store settings from the environment.
func LoadConfig() *Config {
	return &Config{
		Endpoint:        config.GetEnvStr("OBJECT_STORE_ENDPOINT", ""),
		AccessKeyID:     config.GetEnvStr("OBJECT_STORE_ACCESS_KEY", ""),
		SecretAccessKey: config.GetEnvStr("OBJECT_STORE_SECRET_KEY", ""),
		Region:          config.GetEnvStr("OBJECT_STORE_REGION", ""),
		UseSSL:          config.GetEnvBool("OBJECT_STORE_USE_SSL", false),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}

	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return ErrMissingCredentials
	}

	return nil
}

// host returns the endpoint host and whether TLS should be used.
func (c *Config) host() (string, bool, error) {
	useSSL := c.UseSSL

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", false, ErrInvalidEndpoint
	}

	endpoint := u.Host
	if endpoint == "" {
		// Bare host:port without a scheme.
		endpoint = c.Endpoint
	}

	if u.Scheme == "https" {
		useSSL = true
	}

	return endpoint, useSSL, nil
}
