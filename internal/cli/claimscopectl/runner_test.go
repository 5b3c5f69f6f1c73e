package claimscopectl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRunHealthPrintsPrettyJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", server.URL, "health"}, Options{
		HTTPClient: server.Client(),
		Stdout:     &stdout,
		Stderr:     &stderr,
	})

	if code != 0 {
		t.Fatalf("Run() = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskSendsQuestionBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sql/generate" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["question"] != "how many patients" {
			t.Fatalf("question = %v", body["question"])
		}
		if r.Header.Get("X-API-Key") != "k1" {
			t.Fatalf("X-API-Key = %q", r.Header.Get("X-API-Key"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sql": "SELECT COUNT(*) FROM ASRIT_PATIENT"})
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", server.URL,
		"-api-key", "k1",
		"-question", "how many patients",
		"ask",
	}, Options{HTTPClient: server.Client(), Stdout: &stdout, Stderr: &stderr})

	if code != 0 {
		t.Fatalf("Run() = %d, stderr = %s", code, stderr.String())
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"ask"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.Contains(stderr.String(), "-question") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"frobnicate"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("Run() = %d", code)
	}
}

func TestRunErrorStatusReturnsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code":"NOT_READY"}`))
	}))
	defer server.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", server.URL, "ready"}, Options{
		HTTPClient: server.Client(),
		Stderr:     &stderr,
	})
	if code != 1 {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.Contains(stderr.String(), "NOT_READY") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
