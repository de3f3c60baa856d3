package daemon

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"provenance/internal/api"
	"provenance/internal/fingerprint"
	"provenance/internal/metrics"
	"provenance/internal/pipeline"
	"provenance/internal/testsupport"
)

func newTestServer(t *testing.T, opts ...testsupport.ConfigOption) *apiServer {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	m := metrics.New()
	backends := testsupport.MustOpenBackends(t, cfg, pipeline.WithRecorder(m))
	d, err := New(cfg, Dependencies{
		Store:   backends.Store,
		Service: backends.Service,
		Oracle:  backends.Oracle,
		Blobs:   backends.Blobs,
		Metrics: m,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d.api
}

func multipartUpload(t *testing.T, owner string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if owner != "" {
		if err := writer.WriteField("owner", owner); err != nil {
			t.Fatalf("write owner: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func serve(t *testing.T, srv *apiServer, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return payload
}

func TestRegisterMultipartThenDuplicate(t *testing.T) {
	srv := newTestServer(t)
	data := testsupport.Content(1, 512)

	body, contentType := multipartUpload(t, "alice", data)
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	first := decode[api.RegisterResponse](t, w)
	if first.Status != "registered" {
		t.Fatalf("expected registered, got %q", first.Status)
	}
	if first.Record.Fingerprint != fingerprint.Compute(data).String() {
		t.Fatalf("unexpected fingerprint %q", first.Record.Fingerprint)
	}
	if first.Record.SequenceNumber != 1 || first.TransactionHash != "seq:1" {
		t.Fatalf("unexpected sequence: %+v", first)
	}
	if first.AuthenticityScore != 90 || !first.IsAuthentic {
		t.Fatalf("unexpected assessment: %+v", first)
	}

	body, contentType = multipartUpload(t, "bob", data)
	req = httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", contentType)
	second := decode[api.RegisterResponse](t, serve(t, srv, req))
	if second.Status != "alreadyRegistered" {
		t.Fatalf("expected alreadyRegistered, got %q", second.Status)
	}
	if second.Record.Owner != "alice" || second.Record.SequenceNumber != 1 {
		t.Fatalf("expected original record, got %+v", second.Record)
	}
}

func TestAnalyzeAliasReturnsLegacyFields(t *testing.T) {
	srv := newTestServer(t)
	data := testsupport.Content(2, 64)

	req := httptest.NewRequest(http.MethodPost, "/analyze?owner=carol", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"message", "authenticityScore", "isAuthentic", "contentHash", "transactionHash"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("response missing %q: %s", key, w.Body.String())
		}
	}
	if raw["contentHash"] != fingerprint.Compute(data).Hex() {
		t.Fatalf("unexpected contentHash %v", raw["contentHash"])
	}
}

func TestAnalyzeFileOnlyUsesDefaultOwner(t *testing.T) {
	srv := newTestServer(t, testsupport.WithDefaultOwner("studio"))
	data := testsupport.Content(3, 128)

	body, contentType := multipartUpload(t, "", data)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.RegisterResponse](t, w)
	if resp.Status != "registered" || resp.Record.Owner != "studio" {
		t.Fatalf("expected record under default owner, got %+v", resp)
	}

	body, contentType = multipartUpload(t, "", testsupport.Content(4, 128))
	req = httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", contentType)
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("/api/register without owner: expected 400, got %d", w.Code)
	}
}

func TestAnalyzeWithoutDefaultOwnerRequiresOwner(t *testing.T) {
	srv := newTestServer(t, testsupport.WithDefaultOwner(""))
	body, contentType := multipartUpload(t, "", testsupport.Content(5, 64))
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(t, srv, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[api.ErrorResponse](t, w); resp.Kind != "validation" {
		t.Fatalf("unexpected error payload: %+v", resp)
	}
}

func TestRegisterValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader([]byte("bytes")))
	w := serve(t, srv, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing owner: expected 400, got %d", w.Code)
	}
	if resp := decode[api.ErrorResponse](t, w); resp.Kind != "validation" || resp.Retryable {
		t.Fatalf("unexpected error payload: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/register?owner=alice", http.NoBody)
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("empty content: expected 400, got %d", w.Code)
	}

	var onlyOwner bytes.Buffer
	writer := multipart.NewWriter(&onlyOwner)
	if err := writer.WriteField("owner", "alice"); err != nil {
		t.Fatalf("write owner: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/register", &onlyOwner)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file part: expected 400, got %d", w.Code)
	}
}

func TestRegisterBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, testsupport.WithMaxBytes(16))
	payload := bytes.Repeat([]byte{0x7f}, int(srv.maxBody)+1)

	req := httptest.NewRequest(http.MethodPost, "/api/register?owner=alice", bytes.NewReader(payload))
	w := serve(t, srv, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestRegisterOverBlobLimitIsRejected(t *testing.T) {
	srv := newTestServer(t, testsupport.WithMaxBytes(16))

	req := httptest.NewRequest(http.MethodPost, "/api/register?owner=alice", bytes.NewReader(testsupport.Content(3, 64)))
	w := serve(t, srv, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.ErrorResponse](t, w)
	if resp.Kind != "store_rejected" || resp.Stage != "store" || resp.Retryable {
		t.Fatalf("unexpected error payload: %+v", resp)
	}
}

func TestVerifyFoundAndNotFound(t *testing.T) {
	srv := newTestServer(t)
	data := testsupport.Content(4, 128)

	req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(data))
	miss := decode[api.VerifyResponse](t, serve(t, srv, req))
	if miss.Status != "notFound" || miss.Record != nil {
		t.Fatalf("expected notFound, got %+v", miss)
	}
	if miss.Fingerprint != fingerprint.Compute(data).String() {
		t.Fatalf("unexpected fingerprint %q", miss.Fingerprint)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/register?owner=dave", bytes.NewReader(data))
	if w := serve(t, srv, req); w.Code != http.StatusOK {
		t.Fatalf("register: %d", w.Code)
	}

	body, contentType := multipartUpload(t, "", data)
	req = httptest.NewRequest(http.MethodPost, "/api/verify", body)
	req.Header.Set("Content-Type", contentType)
	hit := decode[api.VerifyResponse](t, serve(t, srv, req))
	if hit.Status != "found" || hit.Record == nil || hit.Record.Owner != "dave" {
		t.Fatalf("expected found record for dave, got %+v", hit)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/verify?fingerprint="+fingerprint.Compute(data).Hex(), http.NoBody)
	byHash := decode[api.VerifyResponse](t, serve(t, srv, req))
	if byHash.Status != "found" {
		t.Fatalf("expected found by fingerprint, got %+v", byHash)
	}
}

func TestRecordLookup(t *testing.T) {
	srv := newTestServer(t)
	data := testsupport.Content(5, 32)
	fp := fingerprint.Compute(data).String()

	req := httptest.NewRequest(http.MethodGet, "/api/records/"+fp, nil)
	if w := serve(t, srv, req); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before registration, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/register?owner=erin", bytes.NewReader(data))
	serve(t, srv, req)

	req = httptest.NewRequest(http.MethodGet, "/api/records/"+fp, nil)
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode[api.RecordResponse](t, w); resp.Record.Owner != "erin" {
		t.Fatalf("unexpected record %+v", resp.Record)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/records/not-a-fingerprint", nil)
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed fingerprint, got %d", w.Code)
	}
}

func TestOwnerRecordsOrderAndLimit(t *testing.T) {
	srv := newTestServer(t)
	for i := range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/register?owner=frank", bytes.NewReader(testsupport.Content(byte(10+i), 16)))
		serve(t, srv, req)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/register?owner=grace", bytes.NewReader(testsupport.Content(20, 16)))
	serve(t, srv, req)

	req = httptest.NewRequest(http.MethodGet, "/api/owners/frank/records", nil)
	list := decode[api.RecordListResponse](t, serve(t, srv, req))
	if len(list.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list.Records))
	}
	for i, rec := range list.Records {
		if rec.SequenceNumber != uint64(i+1) {
			t.Fatalf("record %d: expected sequence %d, got %d", i, i+1, rec.SequenceNumber)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/owners/frank/records?limit=2", nil)
	if list := decode[api.RecordListResponse](t, serve(t, srv, req)); len(list.Records) != 2 {
		t.Fatalf("expected limit 2, got %d", len(list.Records))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/owners/nobody/records", nil)
	w := serve(t, srv, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"records":[]`) {
		t.Fatalf("expected empty list, got %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/owners/frank/records?limit=-1", nil)
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", w.Code)
	}
}

func TestAuthRequiredExceptMetrics(t *testing.T) {
	srv := newTestServer(t, testsupport.WithAPIToken("secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if w := serve(t, srv, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := serve(t, srv, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if status := decode[api.DaemonStatus](t, w); status.RegistryBackend != "sqlite" {
		t.Fatalf("unexpected registry backend %q", status.RegistryBackend)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected metrics without auth, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors in exposition")
	}
}

func TestRequestIDEchoedOrGenerated(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(requestIDHeader, "req-123")
	if got := serve(t, srv, req).Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if got := serve(t, srv, req).Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/register", nil)
	if w := serve(t, srv, req); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
