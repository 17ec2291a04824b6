package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Store.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.PSP.Currency != "jpy" {
		t.Errorf("expected jpy currency, got %s", cfg.PSP.Currency)
	}
	if cfg.Redis.CartTTL != 30*time.Second {
		t.Errorf("unexpected cart ttl: %s", cfg.Redis.CartTTL)
	}
	if cfg.Redis.Enabled() || cfg.PubSub.Enabled() {
		t.Errorf("expected cache and events disabled by default")
	}
	if cfg.Postgres.MaxOpenConns != 10 {
		t.Errorf("unexpected max open conns: %d", cfg.Postgres.MaxOpenConns)
	}
	if cfg.Firestore.TxAttempts != 5 || cfg.Firestore.TxTimeout != 15*time.Second {
		t.Errorf("unexpected firestore tx defaults: %d %s", cfg.Firestore.TxAttempts, cfg.Firestore.TxTimeout)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_ENVIRONMENT":             "Prod",
		"STOREFRONT_STORE_BACKEND":           "postgres",
		"STOREFRONT_POSTGRES_DSN":            "sm://db/dsn",
		"STOREFRONT_FIRESTORE_PROJECT_ID":    "sf-prod",
		"STOREFRONT_REDIS_ADDR":              "localhost:6379",
		"STOREFRONT_REDIS_DB":                "3",
		"STOREFRONT_CART_CACHE_TTL":          "1m",
		"STOREFRONT_PUBSUB_ORDER_TOPIC":      "orders",
		"STOREFRONT_PSP_STRIPE_API_KEY":      "secret://stripe/api",
		"STOREFRONT_PSP_SUCCESS_URL":         "https://shop.example.com/ok",
		"STOREFRONT_PSP_CANCEL_URL":          "https://shop.example.com/cancel",
		"STOREFRONT_PSP_CURRENCY":            "USD",
		"STOREFRONT_POSTGRES_MAX_OPEN_CONNS": "25",
	}
	secrets := map[string]string{
		"secret://stripe/api": "sk_test_123",
		"secret://db/dsn":     "postgres://u:p@db/storefront",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown ref")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver), WithRequiredSecrets("PSP.StripeAPIKey"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Environment)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("expected resolved stripe key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.Postgres.DSN != "postgres://u:p@db/storefront" {
		t.Errorf("expected sm:// dsn to resolve, got %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxOpenConns != 25 {
		t.Errorf("unexpected max open conns: %d", cfg.Postgres.MaxOpenConns)
	}
	if cfg.Redis.DB != 3 || cfg.Redis.CartTTL != time.Minute || !cfg.Redis.Enabled() {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.PubSub.ProjectID != "sf-prod" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PSP.Currency != "usd" {
		t.Errorf("expected lower-cased currency, got %s", cfg.PSP.Currency)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_STORE_BACKEND":      "firestore",
		"STOREFRONT_PSP_STRIPE_API_KEY": "sk_test",
		"STOREFRONT_PUBSUB_ORDER_TOPIC": "orders",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []string{"Firestore.ProjectID", "PubSub.ProjectID", "PSP.SuccessURL", "PSP.CancelURL"}
	fields := vErr.Fields()
	for _, field := range want {
		if !slices.Contains(fields, field) {
			t.Errorf("expected %s in %v", field, fields)
		}
	}

	_, err = Load(context.Background(), WithEnvMap(map[string]string{"STOREFRONT_STORE_BACKEND": "mysql"}), WithoutSystemEnv(), WithEnvFile(""))
	if !errors.As(err, &vErr) || !slices.Contains(vErr.Fields(), "Store.Backend") {
		t.Fatalf("expected Store.Backend validation error, got %v", err)
	}
}

func TestLoadSecretResolverMissing(t *testing.T) {
	env := map[string]string{"STOREFRONT_PSP_STRIPE_API_KEY": "secret://stripe/api"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if sErr.Ref != "secret://stripe/api" || !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("unexpected secret error: %v", sErr)
	}
}

func TestLoadRequiredSecretMissing(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""), WithRequiredSecrets("PSP.StripeAPIKey", "PSP.StripeAPIKey"))
	var mErr *MissingSecretsError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := mErr.Names(); len(names) != 1 || names[0] != "PSP.StripeAPIKey" {
		t.Fatalf("unexpected names: %v", names)
	}
	if redacted := mErr.RedactedNames(); len(redacted) != 1 || redacted[0] == "PSP.StripeAPIKey" {
		t.Fatalf("expected redacted name, got %v", redacted)
	}
}

func TestLoadFromDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport STOREFRONT_REDIS_ADDR=\"redis:6379\"\nSTOREFRONT_CART_CACHE_TTL=5s\nSTOREFRONT_ENVIRONMENT=dev\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	env := map[string]string{"STOREFRONT_ENVIRONMENT": "stg"}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.CartTTL != 5*time.Second {
		t.Errorf("expected dotenv values, got %+v", cfg.Redis)
	}
	if cfg.Environment != "stg" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Environment)
	}

	values, err := EnvironmentValues(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["STOREFRONT_ENVIRONMENT"] != "stg" || values["STOREFRONT_REDIS_ADDR"] != "redis:6379" {
		t.Errorf("unexpected environment values: %v", values)
	}
}
