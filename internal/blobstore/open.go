package blobstore

import (
	"fmt"

	"provenance/internal/config"
	"provenance/internal/services"
)

// Open constructs the Store selected by the blobstore config section.
func Open(cfg config.BlobStore) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.BlobStoreLocalFS, "":
		store, err = NewLocalFS(cfg.Dir, cfg.MaxBytes)
	case config.BlobStoreIPFS:
		store, err = NewIPFS(IPFSConfig{
			APIURL:         cfg.IPFSAPIURL,
			MaxBytes:       cfg.MaxBytes,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
	case config.BlobStoreS3:
		store, err = NewS3(S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			MaxBytes:  cfg.MaxBytes,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported blob store backend %q", services.ErrConfiguration, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
