package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
)

const closeTimeout = 5 * time.Second

// errMemoryBackend is returned for commands that need state to survive the process.
var errMemoryBackend = errors.New("the memory store lives only for one run; pass --store firestore|postgres or use the demo command")

// app holds the state shared by every subcommand. A container set before Execute is used
// as is, which lets tests run commands against an in-memory store.
type app struct {
	out       io.Writer
	v         *viper.Viper
	logger    *zap.Logger
	container *di.Container
	owned     bool
	fetcher   *secrets.Fetcher
}

func newApp(out io.Writer) *app {
	return &app{out: out, v: viper.New()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Operate the storefront catalog, carts, checkout and fulfilment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["bootstrap"] == "skip" {
				return nil
			}
			return a.bootstrap(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file whose env section overrides STOREFRONT_* values")
	flags.String("env-file", ".env", "dotenv file read before the process environment")
	flags.String("store", "", "store backend: firestore|postgres (memory is per run and only serves demo)")
	flags.String("log-level", "info", "log level")
	for _, name := range []string{"config", "env-file", "store", "log-level"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}
	a.v.SetEnvPrefix("STOREFRONT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newProductCmd(a),
		newCartCmd(a),
		newPriceCmd(a),
		newCheckoutCmd(a),
		newOrderCmd(a),
		newPaymentCmd(a),
		newShipmentCmd(a),
		newDemoCmd(a),
	)
	return root
}

// bootstrap loads configuration and builds the container, following the same order as the
// service entry point: logger, environment, secret fetcher, config, dependencies.
func (a *app) bootstrap(ctx context.Context) error {
	if a.container != nil {
		return nil
	}
	if err := a.ensureLogger(); err != nil {
		return err
	}
	ctx = observability.WithLogger(ctx, a.logger)

	overrides, err := a.envOverrides()
	if err != nil {
		return err
	}
	loadOpts := []config.Option{
		config.WithEnvFile(a.v.GetString("env-file")),
		config.WithEnvMap(overrides),
	}

	envValues, err := config.EnvironmentValues(loadOpts...)
	if err != nil {
		return fmt.Errorf("read environment values: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, a.logger, envValues)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	a.fetcher = fetcher

	cfg, err := config.Load(ctx, append(loadOpts, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))...)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			return fmt.Errorf("missing required secrets: %s", strings.Join(missing.RedactedNames(), ", "))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.Store.Backend == config.BackendMemory {
		return errMemoryBackend
	}

	container, err := di.NewContainer(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	a.container = container
	a.owned = true
	a.logger.Debug("container ready", zap.String("backend", cfg.Store.Backend), zap.String("psp", container.Gateway.Provider()))
	return nil
}

func (a *app) ensureLogger() error {
	if a.logger != nil {
		return nil
	}
	logger, err := observability.NewLoggerWithLevel(a.v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	a.logger = logger.Named("storefrontctl")
	return nil
}

// envOverrides collects STOREFRONT_* values from the optional config file and the --store
// flag. Viper lowercases keys, so they are upper-cased again here.
func (a *app) envOverrides() (map[string]string, error) {
	overrides := map[string]string{}
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		for key, value := range a.v.GetStringMapString("env") {
			overrides[strings.ToUpper(key)] = value
		}
	}
	if backend := a.v.GetString("store"); backend != "" {
		overrides["STOREFRONT_STORE_BACKEND"] = backend
	}
	return overrides, nil
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if envLabel := strings.ToLower(lookup("STOREFRONT_ENVIRONMENT")); envLabel != "" {
		opts = append(opts, secrets.WithEnvironment(envLabel))
	}
	project := lookup("STOREFRONT_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("STOREFRONT_FIRESTORE_PROJECT_ID")
	}
	if project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if fallback := lookup("STOREFRONT_SECRETS_FALLBACK_FILE"); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func (a *app) close() error {
	var errs []error
	if a.owned && a.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		errs = append(errs, a.container.Close(ctx))
		a.container = nil
		a.owned = false
	}
	if a.fetcher != nil {
		errs = append(errs, a.fetcher.Close())
		a.fetcher = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

func (a *app) services() di.Services {
	return a.container.Services
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
