package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRegistry(); err != nil {
		return err
	}
	c.normalizeOracle()
	if err := c.normalizeBlobStore(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("PROVENANCE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	c.Paths.DefaultOwner = strings.TrimSpace(c.Paths.DefaultOwner)
	if c.Paths.DefaultOwner == "" {
		if value, ok := os.LookupEnv("PROVENANCE_DEFAULT_OWNER"); ok {
			c.Paths.DefaultOwner = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeRegistry() error {
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if c.Registry.Backend == "" {
		c.Registry.Backend = RegistrySQLite
	}
	var err error
	if strings.TrimSpace(c.Registry.SQLitePath) == "" {
		c.Registry.SQLitePath = filepath.Join(c.Paths.DataDir, defaultRegistryDatabaseName)
	}
	if c.Registry.SQLitePath, err = expandPath(c.Registry.SQLitePath); err != nil {
		return fmt.Errorf("registry.sqlite_path: %w", err)
	}
	c.Registry.RedisURL = strings.TrimSpace(c.Registry.RedisURL)
	if c.Registry.RedisURL == "" {
		if value, ok := os.LookupEnv("PROVENANCE_REDIS_URL"); ok {
			c.Registry.RedisURL = strings.TrimSpace(value)
		}
	}
	c.Registry.RedisPrefix = strings.Trim(strings.TrimSpace(c.Registry.RedisPrefix), ":")
	if c.Registry.RedisPrefix == "" {
		c.Registry.RedisPrefix = defaultRedisPrefix
	}
	c.Registry.PostgresDSN = strings.TrimSpace(c.Registry.PostgresDSN)
	if c.Registry.PostgresDSN == "" {
		if value, ok := os.LookupEnv("PROVENANCE_POSTGRES_DSN"); ok {
			c.Registry.PostgresDSN = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeOracle() {
	c.Oracle.Backend = strings.ToLower(strings.TrimSpace(c.Oracle.Backend))
	if c.Oracle.Backend == "" {
		c.Oracle.Backend = OracleHTTP
	}
	c.Oracle.URL = strings.TrimSpace(c.Oracle.URL)
	c.Oracle.Model = strings.TrimSpace(c.Oracle.Model)
	c.Oracle.APIToken = strings.TrimSpace(c.Oracle.APIToken)
	if c.Oracle.APIToken == "" {
		if value, ok := os.LookupEnv("HF_API_TOKEN"); ok {
			c.Oracle.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = defaultOracleTimeoutSeconds
	}
}

func (c *Config) normalizeBlobStore() error {
	c.BlobStore.Backend = strings.ToLower(strings.TrimSpace(c.BlobStore.Backend))
	if c.BlobStore.Backend == "" {
		c.BlobStore.Backend = BlobStoreLocalFS
	}
	var err error
	if strings.TrimSpace(c.BlobStore.Dir) == "" {
		c.BlobStore.Dir = filepath.Join(c.Paths.DataDir, defaultBlobStoreDirName)
	}
	if c.BlobStore.Dir, err = expandPath(c.BlobStore.Dir); err != nil {
		return fmt.Errorf("blobstore.dir: %w", err)
	}
	c.BlobStore.IPFSAPIURL = strings.TrimRight(strings.TrimSpace(c.BlobStore.IPFSAPIURL), "/")
	if c.BlobStore.IPFSAPIURL == "" {
		c.BlobStore.IPFSAPIURL = defaultIPFSAPIURL
	}
	c.BlobStore.IPFSGateway = strings.TrimRight(strings.TrimSpace(c.BlobStore.IPFSGateway), "/")
	if c.BlobStore.IPFSGateway == "" {
		c.BlobStore.IPFSGateway = defaultIPFSGateway
	}
	c.BlobStore.S3Endpoint = strings.TrimSpace(c.BlobStore.S3Endpoint)
	c.BlobStore.S3Bucket = strings.TrimSpace(c.BlobStore.S3Bucket)
	c.BlobStore.S3Prefix = strings.TrimLeft(strings.TrimSpace(c.BlobStore.S3Prefix), "/")
	c.BlobStore.S3AccessKey = strings.TrimSpace(c.BlobStore.S3AccessKey)
	if c.BlobStore.S3AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.BlobStore.S3AccessKey = strings.TrimSpace(value)
		}
	}
	c.BlobStore.S3SecretKey = strings.TrimSpace(c.BlobStore.S3SecretKey)
	if c.BlobStore.S3SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.BlobStore.S3SecretKey = strings.TrimSpace(value)
		}
	}
	if c.BlobStore.MaxBytes == 0 {
		c.BlobStore.MaxBytes = defaultBlobMaxBytes
	}
	if c.BlobStore.TimeoutSeconds == 0 {
		c.BlobStore.TimeoutSeconds = defaultBlobTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
