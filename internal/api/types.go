package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Record describes a registry record in a transport-friendly format.
type Record struct {
	Fingerprint       string  `json:"fingerprint"`
	Owner             string  `json:"owner"`
	StorageReference  string  `json:"storage_reference"`
	GatewayURL        string  `json:"gateway_url,omitempty"`
	AuthenticityScore float64 `json:"authenticity_score"`
	IsAuthentic       bool    `json:"is_authentic"`
	Model             string  `json:"model,omitempty"`
	RegisteredAt      string  `json:"registered_at"`
	SequenceNumber    uint64  `json:"sequence_number"`
	Supersedes        string  `json:"supersedes,omitempty"`
}

// RegisterResponse reports a registration outcome.
type RegisterResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Record  Record `json:"record"`

	ContentHash       string  `json:"contentHash"`
	AuthenticityScore float64 `json:"authenticityScore"`
	IsAuthentic       bool    `json:"isAuthentic"`
	IPFSHash          string  `json:"ipfsHash,omitempty"`
	TransactionHash   string  `json:"transactionHash"`
}

// VerifyResponse reports whether content matched a record.
type VerifyResponse struct {
	Status      string  `json:"status"`
	Fingerprint string  `json:"fingerprint"`
	Record      *Record `json:"record,omitempty"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Record Record `json:"record"`
}

// RecordListResponse wraps an owner's records in sequence order.
type RecordListResponse struct {
	Owner   string   `json:"owner"`
	Records []Record `json:"records"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name      string `json:"name"`
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// RegistryStats summarises the record store.
type RegistryStats struct {
	Records      uint64 `json:"records"`
	LastSequence uint64 `json:"last_sequence"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	SessionID        string             `json:"session_id,omitempty"`
	StartedAt        string             `json:"started_at,omitempty"`
	APIBind          string             `json:"api_bind,omitempty"`
	LockFilePath     string             `json:"lock_file_path"`
	RegistryBackend  string             `json:"registry_backend"`
	OracleBackend    string             `json:"oracle_backend"`
	BlobStoreBackend string             `json:"blobstore_backend"`
	Registry         RegistryStats      `json:"registry"`
	Dependencies     []DependencyStatus `json:"dependencies"`
}
