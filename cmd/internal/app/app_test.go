package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "empty host", in: ":8080", want: "http://127.0.0.1:8080"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func clearPastrEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "PASTR_") || k == "APP_ENV" {
			// Setenv registers the restore; Unsetenv makes LookupEnv miss.
			t.Setenv(k, "")
			_ = os.Unsetenv(k)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearPastrEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Env != EnvDev || cfg.LogFormat != "pretty" {
		t.Fatalf("dev defaults: env=%q format=%q", cfg.Env, cfg.LogFormat)
	}
	if cfg.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("derived base url: %q", cfg.BaseURL)
	}
	if cfg.OpTimeout != 5*time.Second || cfg.Delivery.QueueSize != 256 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearPastrEnv(t)

	dir := t.TempDir()
	file := `
http_addr: 127.0.0.1:9000
base_url: https://pastr.example/
op_timeout: 2s
require_activation: true
mail:
  host: smtp.example
  port: 465
  from: noreply@pastr.example
delivery:
  workers: 4
password:
  policy:
    min_len: 16
  argon2:
    memory_kib: 16384
    iterations: 2
`
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(file), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PASTR_CONFIG_DIR", dir)
	t.Setenv("PASTR_OP_TIMEOUT", "3s")
	t.Setenv("PASTR_ARGON2_ITERATIONS", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.BaseURL != "https://pastr.example" {
		t.Fatalf("file values not applied: addr=%q base=%q", cfg.HTTPAddr, cfg.BaseURL)
	}
	if cfg.OpTimeout != 3*time.Second {
		t.Fatalf("env must override file: op_timeout=%v", cfg.OpTimeout)
	}
	if !cfg.RequireActivation || cfg.Mail.Port != 465 || cfg.Delivery.Workers != 4 {
		t.Fatalf("nested values not applied: %+v", cfg)
	}
	if cfg.Delivery.QueueSize != 256 {
		t.Fatalf("unset file values must keep defaults: queue=%d", cfg.Delivery.QueueSize)
	}
	pw := cfg.Password
	if pw.Policy.MinLength != 16 || pw.Params.MemoryKiB != 16384 {
		t.Fatalf("password file values not applied: %+v", pw)
	}
	if pw.Params.Iterations != 3 {
		t.Fatalf("env must override file: iterations=%d", pw.Params.Iterations)
	}
	if pw.Params.KeyLength != 32 || pw.Policy.MaxLength != 256 {
		t.Fatalf("unset password values must keep defaults: %+v", pw)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad APP_ENV", env: map[string]string{"APP_ENV": "staging"}},
		{name: "prod without db", env: map[string]string{"APP_ENV": "prod", "PASTR_BASE_URL": "https://pastr.example"}},
		{name: "prod over http", env: map[string]string{"APP_ENV": "prod", "PASTR_DATABASE_URL": "postgres://x", "PASTR_BASE_URL": "http://pastr.example"}},
		{name: "relative base url", env: map[string]string{"PASTR_BASE_URL": "/pastr"}},
		{name: "unknown log format", env: map[string]string{"PASTR_LOG_FORMAT": "xml"}},
		{name: "mail without sender", env: map[string]string{"PASTR_MAIL_HOST": "smtp.example"}},
		{name: "unknown file key", file: "no_such_key: 1\n"},
		{name: "argon2 salt too short", file: "password:\n  argon2:\n    salt_len: 4\n"},
		{name: "password min over max", file: "password:\n  policy:\n    min_len: 300\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearPastrEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if tc.file != "" {
				dir := t.TempDir()
				if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(tc.file), 0o600); err != nil {
					t.Fatalf("write: %v", err)
				}
				t.Setenv("PASTR_CONFIG_DIR", dir)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadPepper(t *testing.T) {
	t.Setenv("PASTR_PEPPER", "")
	if _, err := LoadPepper(Config{Env: EnvDev}); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected missing pepper error, got %v", err)
	}

	t.Setenv("PASTR_PEPPER", strings.Repeat("p", 20))
	if _, err := LoadPepper(Config{Env: EnvDev}); err != nil {
		t.Fatalf("dev pepper: %v", err)
	}
	if _, err := LoadPepper(Config{Env: EnvProd}); err == nil || !strings.Contains(err.Error(), "32") {
		t.Fatalf("expected prod length error, got %v", err)
	}
}

func TestApp_EndToEndInMemory(t *testing.T) {
	clearPastrEnv(t)
	t.Setenv("PASTR_PEPPER", "app-test-pepper-0123456789abcdef")

	cfg := defaultConfig()
	cfg.BaseURL = "https://pastr.example"
	cfg.HashWorkers = 2
	cfg.Password.Params.MemoryKiB = 8192
	cfg.Password.Params.Iterations = 1
	cfg.Password.Params.Parallelism = 1

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/user/register", "application/json",
		strings.NewReader(`{"username":"alice","mail":"alice@example.com","password":"correct horse battery"}`))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") == "" || res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", res.Header)
	}

	for path, want := range map[string]int{"/healthz": 200, "/readyz": 200} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		_ = res.Body.Close()
		if res.StatusCode != want {
			t.Fatalf("%s: status %d", path, res.StatusCode)
		}
	}

	res, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	for _, want := range []string{
		`pastr_account_operations_total{op="register",outcome="ok"} 1`,
		`http_requests_total{method="POST",path="POST /api/user/register",status="201"} 1`,
		"pastr_hash_pool_in_flight",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestReadyz_RequireDBWithoutDB(t *testing.T) {
	mux := http.NewServeMux()
	registerHTTP(mux, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{ReadinessRequireDB: true}, nil, nil, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
