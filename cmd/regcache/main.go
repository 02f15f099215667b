package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hokaccha/go-prettyjson"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	"github.com/quorumhq/regcache/cache"
	"github.com/quorumhq/regcache/conf"
	"github.com/quorumhq/regcache/internal/build"
	"github.com/quorumhq/regcache/internal/log"
	"github.com/quorumhq/regcache/internal/tracing"
	"github.com/quorumhq/regcache/registry"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "version", "--version", "-v":
			showVersion()
			return
		case "help", "--help", "-h":
			showHelp()
			return
		case "build-info":
			showBuildInfo()
			return
		}
	}

	run()
}

func showBuildInfo() {
	fmt.Println(build.GetBuildInfo())
}

type fxLogger struct{}

func (l *fxLogger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

func run() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxLogger{}
		}),
		fx.Provide(
			conf.Load,
			func(cfg *conf.Config) log.Config { return cfg.Log },
			func(cfg *conf.Config) registry.Config { return cfg.Registry },
			func(cfg *conf.Config) registry.WatchConfig { return cfg.Watch },
			registry.NewClient,
			registry.NewSet,
		),
		fx.Invoke(func(cfg log.Config) {
			log.SetGlobalConfig(cfg)
			tracing.SetupLogger(log.GetGlobalLogger())
			slog.SetDefault(log.GetGlobalLogger().AsSlog())
		}),
		fx.Invoke(func(lc fx.Lifecycle, client *registry.Client, set *registry.Set) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// Startup logs share one trace id.
					ctx = tracing.WithTraceID(ctx, tracing.GenerateTraceID())

					info, err := client.Agent().Self(ctx)
					if err != nil {
						log.Warn(ctx, "agent identity unavailable", log.Cause(err))
					} else {
						log.Info(ctx, "connected to agent",
							log.String("node", info.NodeName),
							log.String("datacenter", info.Datacenter),
							log.String("version", info.Version),
						)
					}

					for _, service := range set.Services() {
						c, _ := set.Cache(service)
						c.AddListener(&changeLogger{service: service})
					}

					return set.Start(ctx)
				},
				OnStop: func(ctx context.Context) error {
					set.Stop()
					return nil
				},
			})
		}),
	)

	if err := app.Err(); err != nil {
		log.Fatalf("regcache failed to initialize: %v", err)
	}

	app.Run()
}

// changeLogger logs every snapshot change for one watched service.
type changeLogger struct {
	service string
}

func (l *changeLogger) Notify(entries map[registry.ServiceKey]registry.ServiceEntry) {
	ctx := context.Background()

	log.Info(ctx, "service membership changed",
		log.String("service", l.service),
		log.Int("instances", len(entries)),
	)

	if log.DebugEnabled(ctx) {
		addrs := lo.Map(lo.Keys(entries), func(k registry.ServiceKey, _ int) string {
			return fmt.Sprintf("%s:%d", k.Host, k.Port)
		})
		log.Debug(ctx, "service instances",
			log.String("service", l.service),
			log.Any("addresses", addrs),
		)
	}
}

var _ cache.Listener[registry.ServiceKey, registry.ServiceEntry] = (*changeLogger)(nil)

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: regcache config <preview|validate|get>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	case "get":
		configGet()
	default:
		fmt.Println("Usage: regcache config <preview|validate|get>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--format" || os.Args[i] == "-f" {
			if i+1 < len(os.Args) {
				format = os.Args[i+1]
			}
		}
	}

	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var output []byte

	switch format {
	case "json":
		output, err = prettyjson.Marshal(config)
	case "yml", "yaml":
		output, err = yaml.Marshal(config)
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Failed to preview config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(output))
}

func configValidate() {
	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	errors := validateConfig(config)

	if len(errors) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, err := range errors {
		fmt.Printf("  - %s\n", err)
	}

	os.Exit(1)
}

func validateConfig(config *conf.Config) []string {
	var errors []string

	if config.Registry.Address == "" {
		errors = append(errors, "registry.address cannot be empty")
	}

	if config.Watch.BlockSeconds < 0 {
		errors = append(errors, "watch.block_seconds cannot be negative")
	}

	if config.Watch.Backoff < 0 {
		errors = append(errors, "watch.backoff cannot be negative")
	}

	if len(config.Watch.Services) == 0 {
		errors = append(errors, "watch.services cannot be empty")
	}

	seen := map[string]bool{}
	for _, s := range config.Watch.Services {
		if s.Name == "" {
			errors = append(errors, "watch.services entries must have a name")
			continue
		}

		if seen[s.Name] {
			errors = append(errors, fmt.Sprintf("watch.services has duplicate service %q", s.Name))
		}

		seen[s.Name] = true
	}

	return errors
}

func configGet() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: regcache config get <key>")
		fmt.Println("")
		fmt.Println("Available keys:")
		fmt.Println("  registry.address      Agent HTTP address")
		fmt.Println("  registry.datacenter   Target datacenter")
		fmt.Println("  watch.block_seconds   Blocking query wait in seconds")
		fmt.Println("  watch.backoff         Retry delay after a failed poll")
		fmt.Println("  log.level             Log level")
		os.Exit(1)
	}

	key := os.Args[3]

	config, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var value interface{}

	switch key {
	case "registry.address":
		value = config.Registry.Address
	case "registry.datacenter":
		value = config.Registry.Datacenter
	case "watch.block_seconds":
		value = config.Watch.BlockSeconds
	case "watch.backoff":
		value = config.Watch.Backoff
	case "watch.init_timeout":
		value = config.Watch.InitTimeout
	case "log.level":
		value = config.Log.Level
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}

	fmt.Println(value)
}

func showHelp() {
	fmt.Println("regcache service registry watch cache")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  regcache                   Start watching configured services (default)")
	fmt.Println("  regcache config preview    Preview configuration")
	fmt.Println("  regcache config validate   Validate configuration")
	fmt.Println("  regcache config get <key>  Get a specific config value")
	fmt.Println("  regcache version           Show version")
	fmt.Println("  regcache build-info        Show build details")
	fmt.Println("  regcache help              Show this help message")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -f, --format FORMAT       Output format for config preview (yml, json)")
}

func showVersion() {
	fmt.Println(build.Version)
}
