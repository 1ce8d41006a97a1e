// Command server runs the agent runtime HTTP API: assistants, threads,
// runs, the namespaced store, and the in-process cron scheduler, all
// behind a single chi router (internal/httpapi).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"goa.design/clue/log"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/checkpoint/mongocheckpoint"
	"github.com/flowmind/agentrt/internal/cron"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/graph/reactagent"
	"github.com/flowmind/agentrt/internal/httpapi"
	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/llm"
	"github.com/flowmind/agentrt/internal/llm/anthropic"
	"github.com/flowmind/agentrt/internal/llm/openai"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/repo/inmem"
	"github.com/flowmind/agentrt/internal/repo/mongorepo"
	"github.com/flowmind/agentrt/internal/store"
	mongostorepkg "github.com/flowmind/agentrt/internal/store/mongostore"
	"github.com/flowmind/agentrt/internal/streaming"
	"github.com/flowmind/agentrt/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		addrF      = flag.String("addr", ":8080", "HTTP listen address")
		mongoURIF  = flag.String("mongo-uri", os.Getenv("AGENTRT_MONGO_URI"), "MongoDB connection URI; empty selects the in-memory backend")
		mongoDBF   = flag.String("mongo-db", envOr("AGENTRT_MONGO_DB", "agentrt"), "MongoDB database name")
		jwksURLF   = flag.String("jwks-url", os.Getenv("AGENTRT_JWKS_URL"), "JWKS URL for bearer token verification; empty runs in anonymous dev mode")
		issuerF    = flag.String("jwt-issuer", os.Getenv("AGENTRT_JWT_ISSUER"), "expected JWT issuer claim")
		audienceF  = flag.String("jwt-audience", os.Getenv("AGENTRT_JWT_AUDIENCE"), "expected JWT audience claim")
		debugF     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *debugF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	warn := func(msg string, args ...any) { log.Print(ctx, log.KV{K: "warning", V: msg}, kvs(args)...) }

	backend, closeBackend, err := buildBackend(ctx, *mongoURIF, *mongoDBF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build storage backend: %w", err))
	}
	defer closeBackend()

	graphs := graph.NewRegistry(func(id string) {
		warn("unknown graph_id, falling back to default", "graph_id", id)
	})
	graphs.Register(graph.DefaultGraphID, buildReactAgentFactory(warn))

	hub := streaming.NewHub()
	recorder := telemetry.NewRecorder(
		telemetry.NewClueLogger(),
		telemetry.NewClueMetrics(),
		telemetry.NewClueTracer(),
	)

	lc := lifecycle.NewEngine(lifecycle.Engine{
		Assistants:  backend.assistants,
		Threads:     backend.threads,
		Runs:        backend.runs,
		Checkpoints: backend.checkpoints,
		Store:       backend.store,
		Graphs:      graphs,
		Hub:         hub,
		Tracer:      recorder,
		Warn:        warn,
	})

	cronEngine := cron.NewEngine(backend.crons, lc, warn)
	if err := cronEngine.Start(ctx); err != nil {
		log.Fatal(ctx, fmt.Errorf("start cron engine: %w", err))
	}

	var verifier identity.Verifier
	if *jwksURLF != "" {
		v, err := identity.New(ctx, identity.Options{JWKSURL: *jwksURLF, Issuer: *issuerF, Audience: *audienceF})
		if err != nil {
			log.Fatal(ctx, fmt.Errorf("build jwks verifier: %w", err))
		}
		verifier = v
	} else {
		log.Print(ctx, log.KV{K: "auth", V: "anonymous dev mode (no -jwks-url configured)"})
	}

	srv := &httpapi.Server{
		Assistants: backend.assistants,
		Threads:    backend.threads,
		Runs:       backend.runs,
		Crons:      backend.crons,
		Store:      backend.store,
		Lifecycle:  lc,
		CronEngine: cronEngine,
		Hub:        hub,
		Graphs:     graphs,
		Verifier:   verifier,
		Build:      httpapi.BuildInfo{Version: version, Commit: commit},
		Warn:       warn,
	}

	httpServer := &http.Server{
		Addr:    *addrF,
		Handler: srv.NewRouter(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "addr", V: *addrF})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		log.Print(ctx, log.KV{K: "fatal", V: err.Error()})
	case sig := <-stop:
		log.Print(ctx, log.KV{K: "signal", V: sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	cronEngine.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Print(ctx, log.KV{K: "shutdown-error", V: err.Error()})
	}
}

// backendSet bundles the storage implementations selected at startup,
// whichever concrete package built them.
type backendSet struct {
	assistants  repo.AssistantRepo
	threads     repo.ThreadRepo
	runs        repo.RunRepo
	crons       repo.CronRepo
	checkpoints checkpoint.Factory
	store       store.Store
}

// buildBackend selects the in-memory backend when mongoURI is empty
// (the default for local development and tests), or connects to MongoDB
// and wires every repository against the same client and database
// otherwise. The returned close func always succeeds; for the in-memory
// backend it is a no-op.
func buildBackend(ctx context.Context, mongoURI, database string) (*backendSet, func(), error) {
	if mongoURI == "" {
		return &backendSet{
			assistants:  inmem.NewAssistants(),
			threads:     inmem.NewThreads(),
			runs:        inmem.NewRuns(),
			crons:       inmem.NewCrons(),
			checkpoints: checkpoint.NewInmemFactory(),
			store:       store.NewInmem(),
		}, func() {}, nil
	}

	client, err := mongodriver.Connect(options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	timeout := 10 * time.Second
	assistants, err := mongorepo.NewAssistants(ctx, mongorepo.Options{Client: client, Database: database, Timeout: timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("build assistants repo: %w", err)
	}
	threads, err := mongorepo.NewThreads(ctx, mongorepo.Options{Client: client, Database: database, Timeout: timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("build threads repo: %w", err)
	}
	runs, err := mongorepo.NewRuns(ctx, mongorepo.Options{Client: client, Database: database, Timeout: timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("build runs repo: %w", err)
	}
	crons, err := mongorepo.NewCrons(ctx, mongorepo.Options{Client: client, Database: database, Timeout: timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("build crons repo: %w", err)
	}
	checkpoints, err := mongocheckpoint.New(mongocheckpoint.Options{Client: client, Database: database, Collection: "checkpoints", Timeout: timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("build checkpoint factory: %w", err)
	}
	st, err := mongostorepkg.New(mongostorepkg.Options{Client: client, Database: database, Collection: "store_items", Timeout: timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("build store: %w", err)
	}

	closeFn := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}
	return &backendSet{
		assistants:  assistants,
		threads:     threads,
		runs:        runs,
		crons:       crons,
		checkpoints: checkpoints,
		store:       st,
	}, closeFn, nil
}

// buildReactAgentFactory returns the graph.Factory for the default
// "agent" graph_id, resolving its model provider per run from the merged
// configurable dict's "model" entry (e.g. "anthropic:claude-3-5-sonnet",
// "openai:gpt-4o"); providers are constructed once from environment
// variables at startup and shared across runs (the SDK clients are safe
// for concurrent use; only the checkpointer and store handles are
// per-run, per spec §5's discipline).
func buildReactAgentFactory(warn func(string, ...any)) graph.Factory {
	registry := llm.NewRegistry()
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := envOr("ANTHROPIC_DEFAULT_MODEL", "claude-3-5-sonnet-latest")
		client, err := anthropic.NewFromAPIKey(key, model)
		if err != nil {
			warn("failed to build anthropic provider, skipping", "error", err)
		} else {
			registry.Register("anthropic", client)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := envOr("OPENAI_DEFAULT_MODEL", "gpt-4o-mini")
		client, err := openai.NewFromAPIKey(key, model)
		if err != nil {
			warn("failed to build openai provider, skipping", "error", err)
		} else {
			registry.Register("openai", client)
		}
	}

	return func(_ context.Context, configurable map[string]any, cp checkpoint.Checkpointer, st store.Store) (graph.Graph, error) {
		modelSpec, _ := configurable["model"].(string)
		if modelSpec == "" {
			return nil, errors.New("reactagent: assistant config.configurable.model is required")
		}
		provider, model, err := registry.Resolve(modelSpec)
		if err != nil {
			return nil, err
		}
		systemPrompt, _ := configurable["system_prompt"].(string)
		temperature, _ := configurable["temperature"].(float64)

		return reactagent.New(reactagent.Options{
			Provider:     provider,
			Model:        model,
			SystemPrompt: systemPrompt,
			Temperature:  temperature,
		}, cp, st), nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func kvs(args []any) []log.Fielder {
	fields := make([]log.Fielder, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		fields = append(fields, log.KV{K: key, V: args[i+1]})
	}
	return fields
}
