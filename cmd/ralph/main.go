package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bandhan-ai/ralph/crm"
	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/internal/config"
	"github.com/bandhan-ai/ralph/internal/logging"
	"github.com/bandhan-ai/ralph/observe"
	"github.com/bandhan-ai/ralph/prompt"
	"github.com/bandhan-ai/ralph/providers/gemini"
	"github.com/bandhan-ai/ralph/runtimeconfig"
	"github.com/bandhan-ai/ralph/server"
	"github.com/bandhan-ai/ralph/session"
	"github.com/bandhan-ai/ralph/state"
	stateredis "github.com/bandhan-ai/ralph/state/redis"
	statesqlite "github.com/bandhan-ai/ralph/state/sqlite"
	"github.com/bandhan-ai/ralph/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	var cfg runtimeconfig.Config
	if *configPath != "" {
		loaded, err := runtimeconfig.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log := logging.New(nil, config.StringEnv("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	model := config.StringEnv("RALPH_MODEL", cfg.Model)
	providerOpts := []gemini.Option{}
	if model != "" {
		providerOpts = append(providerOpts, gemini.WithModel(model))
	}
	provider, err := gemini.New(ctx, apiKey, providerOpts...)
	if err != nil {
		return err
	}

	crmPath := config.StringEnv("RALPH_CRM_PATH", firstNonEmpty(cfg.CRMPath, "ralph-crm.db"))
	crmStore, err := crm.Open(crmPath, crm.WithWAL(true))
	if err != nil {
		return err
	}
	defer crmStore.Close()

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewCRMQuery(crmStore))
	registry.MustRegister(tools.NewCreateCampaign(crmStore))
	registry.MustRegister(tools.NewSendCampaignEmail(crmStore))

	protected := cfg.ProtectedTools
	if len(protected) == 0 {
		protected = graph.DefaultProtectedTools
	}
	registry.Protect(protected...)

	store, err := openStateStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	observer := observe.NewAsyncSink(logSink(log.Sub("observe")), 256)
	defer observer.Close()

	systemPrompt := firstNonEmpty(cfg.SystemPrompt, prompt.Default)
	engine, err := graph.NewEngine(provider, registry,
		graph.WithSystemPrompt(systemPrompt),
		graph.WithStore(store),
		graph.WithObserver(observer),
	)
	if err != nil {
		return err
	}

	autoApprove := config.ParseBoolEnv("RALPH_AUTO_APPROVE", cfg.AutoApprove)
	sessions := session.NewRegistry(
		session.WithStateStore(store),
		session.WithProtectedTools(protected),
		session.WithAutoApprove(autoApprove),
	)

	addr := fmt.Sprintf("%s:%d",
		config.StringEnv("HOST", "0.0.0.0"),
		config.ParseIntEnv("PORT", 8000),
	)
	srv := server.New(sessions, engine, log,
		server.WithAddr(addr),
		server.WithGreeting(prompt.Greeting),
	)

	log.Info().
		Str("addr", addr).
		Str("crm", crmPath).
		Bool("autoApprove", autoApprove).
		Strs("protected", protected).
		Msg("ralph starting")

	return srv.Start(ctx)
}

func openStateStore(cfg runtimeconfig.Config, log *logging.Logger) (state.Store, error) {
	backend := config.StringEnv("RALPH_STATE_BACKEND", firstNonEmpty(cfg.StateBackend, "memory"))
	switch backend {
	case "memory":
		return state.NewMemoryStore(), nil
	case "sqlite":
		path := config.StringEnv("RALPH_DB_PATH", firstNonEmpty(cfg.DBPath, "ralph-state.db"))
		log.Info().Str("path", path).Msg("using sqlite state backend")
		return statesqlite.New(path, statesqlite.WithWAL(true))
	case "redis":
		addr := config.StringEnv("REDIS_ADDR", firstNonEmpty(cfg.RedisAddr, "127.0.0.1:6379"))
		log.Info().Str("addr", addr).Msg("using redis state backend")
		return stateredis.New(addr,
			stateredis.WithPassword(os.Getenv("REDIS_PASSWORD")),
			stateredis.WithDB(config.ParseIntEnv("REDIS_DB", 0)),
		)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// logSink forwards observability events to the structured logger.
func logSink(log *logging.Logger) observe.Sink {
	return observe.SinkFunc(func(_ context.Context, event observe.Event) error {
		entry := log.Info()
		if event.Status == observe.StatusFailed {
			entry = log.Error()
		}
		entry = entry.
			Str("kind", string(event.Kind)).
			Str("status", string(event.Status)).
			Str("session", event.SessionID)
		if event.Name != "" {
			entry = entry.Str("node", event.Name)
		}
		if event.ToolName != "" {
			entry = entry.Str("tool", event.ToolName)
		}
		if event.Error != "" {
			entry = entry.Str("error", event.Error)
		}
		entry.Msg(firstNonEmpty(event.Message, "event"))
		return nil
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
