package config

const (
	defaultConfigPath           = "~/.config/provenance/config.toml"
	defaultDataDir              = "~/.local/share/provenance"
	defaultLogDir               = "~/.local/share/provenance/logs"
	defaultAPIBind              = "127.0.0.1:7420"
	defaultOwner                = "provenance"
	defaultRedisPrefix          = "provenance"
	defaultOracleURL            = "https://api-inference.huggingface.co/models/Hemg/Deepfake-Detection"
	defaultOracleModel          = "Hemg/Deepfake-Detection"
	defaultOracleThreshold      = 50.0
	defaultOracleTimeoutSeconds = 30
	defaultIPFSAPIURL           = "http://127.0.0.1:5001"
	defaultIPFSGateway          = "https://ipfs.io"
	defaultBlobMaxBytes         = 32 << 20
	defaultBlobTimeoutSeconds   = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultFixedScore           = 100.0
	defaultRegistryDatabaseName = "registry.db"
	defaultBlobStoreDirName     = "blobs"
)

// Registry backends.
const (
	RegistrySQLite   = "sqlite"
	RegistryMemory   = "memory"
	RegistryRedis    = "redis"
	RegistryPostgres = "postgres"
)

// Oracle backends.
const (
	OracleHTTP  = "http"
	OracleFixed = "fixed"
)

// Blob store backends.
const (
	BlobStoreLocalFS = "localfs"
	BlobStoreIPFS    = "ipfs"
	BlobStoreS3      = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
			DefaultOwner: defaultOwner,
		},
		Registry: Registry{
			Backend:     RegistrySQLite,
			RedisPrefix: defaultRedisPrefix,
		},
		Oracle: Oracle{
			Backend:        OracleHTTP,
			URL:            defaultOracleURL,
			Model:          defaultOracleModel,
			Threshold:      defaultOracleThreshold,
			TimeoutSeconds: defaultOracleTimeoutSeconds,
			FixedScore:     defaultFixedScore,
		},
		BlobStore: BlobStore{
			Backend:        BlobStoreLocalFS,
			IPFSAPIURL:     defaultIPFSAPIURL,
			IPFSGateway:    defaultIPFSGateway,
			MaxBytes:       defaultBlobMaxBytes,
			TimeoutSeconds: defaultBlobTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
