package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "STORAGE_BACKEND", "POSTGRES_DSN", "MONGO_URI", "AUTH_MODE", "DECISION_EVALUATOR", "NOTIFY_MODE", "NOTIFY_TIMEOUT_SECONDS", "STORE_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" || cfg.StorageBackend != StorageMemory || cfg.AuthMode != AuthModeHeader {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DecisionEvaluator != EvaluatorNative || cfg.NotifyMode != NotifyLog {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StoreTimeout() != 5*time.Second {
		t.Fatalf("expected 5s store timeout, got %s", cfg.StoreTimeout())
	}
	if cfg.NotifyTimeout() != 10*time.Second {
		t.Fatalf("expected 10s notify timeout, got %s", cfg.NotifyTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
}

func TestFromEnvInfersBackendFromDSN(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/dealroom")
	if got := FromEnv().StorageBackend; got != StoragePostgres {
		t.Fatalf("expected postgres backend, got %s", got)
	}
}

func TestValidateRejectsIncompleteSettings(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"postgres without dsn", Config{StorageBackend: StoragePostgres, AuthMode: AuthModeHeader, DecisionEvaluator: EvaluatorNative, NotifyMode: NotifyNone}},
		{"jwt without secret", Config{StorageBackend: StorageMemory, AuthMode: AuthModeJWT, DecisionEvaluator: EvaluatorNative, NotifyMode: NotifyNone}},
		{"unknown evaluator", Config{StorageBackend: StorageMemory, AuthMode: AuthModeHeader, DecisionEvaluator: "cel", NotifyMode: NotifyNone}},
		{"smtp without host", Config{StorageBackend: StorageMemory, AuthMode: AuthModeHeader, DecisionEvaluator: EvaluatorNative, NotifyMode: NotifySMTP}},
		{"unknown backend", Config{StorageBackend: "sqlite", AuthMode: AuthModeHeader, DecisionEvaluator: EvaluatorNative, NotifyMode: NotifyNone}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DEALROOM_TEST_ONLY_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DEALROOM_TEST_ONLY_KEY", "")
	os.Unsetenv("DEALROOM_TEST_ONLY_KEY")
	t.Setenv("STORAGE_BACKEND", StorageMemory)
	t.Setenv("AUTH_MODE", AuthModeHeader)
	t.Setenv("DECISION_EVALUATOR", EvaluatorNative)
	t.Setenv("NOTIFY_MODE", NotifyNone)

	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DEALROOM_TEST_ONLY_KEY"); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
	if _, err := Load(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored: %v", err)
	}
}
