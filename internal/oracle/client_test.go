package oracle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"provenance/internal/config"
)

func TestClientAssessScoresRealProbability(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer hf-token" {
			t.Fatalf("unexpected authorization header %q", auth)
		}
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`[{"label":"Real","score":0.93},{"label":"Fake","score":0.07}]`))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, APIToken: "hf-token", Threshold: DefaultThreshold, Model: "deepfake-detector"})
	got, err := client.Assess(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if string(gotBody) != "image-bytes" {
		t.Fatalf("classifier received %q", gotBody)
	}
	if got.Score < 92.99 || got.Score > 93.01 {
		t.Fatalf("unexpected score %v", got.Score)
	}
	if !got.IsAuthentic {
		t.Fatal("expected authentic verdict")
	}
	if got.Model != "deepfake-detector" {
		t.Fatalf("unexpected model %q", got.Model)
	}
}

func TestClientAssessFallsBackToFakeLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"deepfake","score":0.8}]`))
	}))
	defer server.Close()

	got, err := NewClient(Config{URL: server.URL, Threshold: DefaultThreshold}).Assess(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if got.Score < 19.99 || got.Score > 20.01 || got.IsAuthentic {
		t.Fatalf("unexpected assessment %+v", got)
	}
}

func TestClientAssessClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "model loading", status: http.StatusServiceUnavailable, body: `{"error":"loading"}`, want: ErrUnavailable},
		{name: "unsupported media", status: http.StatusUnsupportedMediaType, body: `{"error":"bad image"}`, want: ErrUnsupportedFormat},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, body: ``, want: ErrTimeout},
		{name: "unknown labels", status: http.StatusOK, body: `[{"label":"cat","score":1}]`, want: ErrUnsupportedFormat},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: ErrUnsupportedFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(Config{URL: server.URL}).Assess(context.Background(), []byte("x"))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestClientAssessUnreachableIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(Config{URL: url}).Assess(context.Background(), []byte("x"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientAssessDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(Config{URL: server.URL}).Assess(ctx, []byte("x"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNewAssessmentClampsScore(t *testing.T) {
	if got := NewAssessment(140, DefaultThreshold, ""); got.Score != 100 || !got.IsAuthentic {
		t.Fatalf("unexpected high clamp %+v", got)
	}
	if got := NewAssessment(-3, DefaultThreshold, ""); got.Score != 0 || got.IsAuthentic {
		t.Fatalf("unexpected low clamp %+v", got)
	}
	if got := NewAssessment(50, DefaultThreshold, ""); !got.IsAuthentic {
		t.Fatal("score equal to threshold should be authentic")
	}
}

func TestFixedOracle(t *testing.T) {
	fixed := NewFixed(75, DefaultThreshold)
	got, err := fixed.Assess(context.Background(), nil)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if got.Score != 75 || !got.IsAuthentic || got.Model != "fixed" {
		t.Fatalf("unexpected assessment %+v", got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	orc, err := Open(config.Oracle{Backend: config.OracleFixed, FixedScore: 12, Threshold: 50})
	if err != nil {
		t.Fatalf("open fixed: %v", err)
	}
	got, err := orc.Assess(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if got.Score != 12 || got.IsAuthentic {
		t.Fatalf("unexpected assessment %+v", got)
	}

	orc, err = Open(config.Oracle{Backend: config.OracleHTTP, URL: "http://127.0.0.1:1/model"})
	if err != nil {
		t.Fatalf("open http: %v", err)
	}
	if _, ok := orc.(*Client); !ok {
		t.Fatalf("expected *Client, got %T", orc)
	}
	if _, err := Open(config.Oracle{Backend: "crystal-ball"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
