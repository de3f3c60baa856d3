package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxOwnerLength = 256

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateOracle(); err != nil {
		return err
	}
	if err := c.validateBlobStore(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	owner := c.Paths.DefaultOwner
	if utf8.RuneCountInString(owner) > maxOwnerLength {
		return fmt.Errorf("paths.default_owner must be at most %d characters", maxOwnerLength)
	}
	if strings.IndexFunc(owner, unicode.IsControl) >= 0 {
		return errors.New("paths.default_owner must not contain control characters")
	}
	return nil
}

func (c *Config) validateRegistry() error {
	switch c.Registry.Backend {
	case RegistrySQLite:
		if c.Registry.SQLitePath == "" {
			return errors.New("registry.sqlite_path must be set for the sqlite backend")
		}
	case RegistryMemory:
	case RegistryRedis:
		if c.Registry.RedisURL == "" {
			return errors.New("registry.redis_url must be set for the redis backend (or PROVENANCE_REDIS_URL)")
		}
	case RegistryPostgres:
		if c.Registry.PostgresDSN == "" {
			return errors.New("registry.postgres_dsn must be set for the postgres backend (or PROVENANCE_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("registry.backend: unsupported value %q (want sqlite, memory, redis, or postgres)", c.Registry.Backend)
	}
	return nil
}

func (c *Config) validateOracle() error {
	if c.Oracle.Threshold < 0 || c.Oracle.Threshold > 100 {
		return fmt.Errorf("oracle.threshold must be between 0 and 100, got %v", c.Oracle.Threshold)
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		return errors.New("oracle.timeout_seconds must be positive")
	}
	switch c.Oracle.Backend {
	case OracleHTTP:
		if c.Oracle.URL == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("oracle.url is required for the http oracle. Edit %s (create with 'provenance config init') or set oracle.backend = \"fixed\"", defaultPath)
		}
	case OracleFixed:
		if c.Oracle.FixedScore < 0 || c.Oracle.FixedScore > 100 {
			return fmt.Errorf("oracle.fixed_score must be between 0 and 100, got %v", c.Oracle.FixedScore)
		}
	default:
		return fmt.Errorf("oracle.backend: unsupported value %q (want http or fixed)", c.Oracle.Backend)
	}
	return nil
}

func (c *Config) validateBlobStore() error {
	if c.BlobStore.MaxBytes < 0 {
		return errors.New("blobstore.max_bytes must not be negative")
	}
	if c.BlobStore.TimeoutSeconds <= 0 {
		return errors.New("blobstore.timeout_seconds must be positive")
	}
	switch c.BlobStore.Backend {
	case BlobStoreLocalFS:
		if c.BlobStore.Dir == "" {
			return errors.New("blobstore.dir must be set for the localfs backend")
		}
	case BlobStoreIPFS:
		if c.BlobStore.IPFSAPIURL == "" {
			return errors.New("blobstore.ipfs_api_url must be set for the ipfs backend")
		}
	case BlobStoreS3:
		if c.BlobStore.S3Endpoint == "" {
			return errors.New("blobstore.s3_endpoint must be set for the s3 backend")
		}
		if c.BlobStore.S3Bucket == "" {
			return errors.New("blobstore.s3_bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("blobstore.backend: unsupported value %q (want localfs, ipfs, or s3)", c.BlobStore.Backend)
	}
	return nil
}
