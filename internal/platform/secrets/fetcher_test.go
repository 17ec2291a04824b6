package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeResource = "projects/storefront-test/secrets/stripe_api_key/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_remote"

	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithDefaultProject("storefront-test"))

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "sk_remote" {
			t.Fatalf("expected sk_remote, got %s", got)
		}
	}
	if calls := client.callCount(stripeResource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}

	fetcher.Invalidate("secret://stripe_api_key")
	if _, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if calls := client.callCount(stripeResource); calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}

func TestResolveFallsBackWhenSecretManagerDenies(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithDefaultProject("storefront-test"),
		WithFallbackFile(writeFallback(t, "# local\nsm://stripe_api_key=sk_local\n")),
	)

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("expected fallback sk_local, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.NotFound, "missing")

	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithDefaultProject("storefront-test"),
		WithFallbackFile(writeFallback(t, "secret://stripe_api_key=sk_local\n")),
	)

	if _, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key"); err == nil {
		t.Fatal("expected error when secret is missing remotely")
	}
}

func TestResolveUsesVersionPinsAndProjectMap(t *testing.T) {
	client := newFakeSecretClient()
	pinned := "projects/storefront-prod/secrets/stripe_api_key/versions/5"
	client.values[pinned] = "sk_v5"

	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithEnvironment("PROD"),
		WithDefaultProject("storefront-test"),
		WithProjectMap(map[string]string{"prod": "storefront-prod"}),
		WithVersionPins(map[string]string{"prod:secret://stripe_api_key": "5"}),
	)

	got, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_v5" {
		t.Fatalf("expected sk_v5, got %s", got)
	}

	client.values["projects/other/secrets/db_dsn/versions/2"] = "dsn"
	got, err = fetcher.Resolve(context.Background(), "secret://db_dsn?project=other&version=2")
	if err != nil || got != "dsn" {
		t.Fatalf("expected query overrides to apply, got %q %v", got, err)
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (secretManagerClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = original })

	fetcher := newTestFetcher(t,
		WithDefaultProject("storefront-test"),
		WithFallbackFile(writeFallback(t, "secret://stripe_api_key=sk_local\n")),
	)

	got, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("expected sk_local, got %s", got)
	}
}

func TestResolveRejectsMalformedReferences(t *testing.T) {
	fetcher := newTestFetcher(t, WithFallbackFile(""))
	for _, ref := range []string{"", "https://example.com/x", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithMeter(noop.NewMeterProvider().Meter("test"))}, opts...)
	fetcher, err := NewFetcher(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
