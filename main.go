package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"datachat/internal/api"
	"datachat/internal/chart"
	"datachat/internal/config"
	"datachat/internal/logx"
	"datachat/internal/models"
	"datachat/internal/rag"
	"datachat/internal/redis"
	"datachat/internal/service/ai"
	"datachat/internal/service/assistant"
	"datachat/internal/storage"
	"datachat/internal/tokenizer"
	"datachat/internal/worker"
)

func main() {
	_ = godotenv.Load()

	defaultCfg := os.Getenv("DATACHAT_CONFIG")
	if defaultCfg == "" {
		defaultCfg = "config.json"
	}
	cfgPath := flag.String("config", defaultCfg, "path to config.json")
	ingestDir := flag.String("ingest", "", "ingest documents from this directory into the index, then exit")
	repl := flag.Bool("repl", false, "run an interactive prompt instead of the HTTP server")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logx.Init(cfg.BasicConfig.Environment)

	provider := cfg.BasicConfig.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		logx.Fatal().Str("provider", provider).Msg("provider not configured")
	}
	apiKey := resolveAPIKey(provider, provCfg)
	if apiKey == "" {
		logx.Fatal().Str("provider", provider).Msg("no API credential configured")
	}

	ctx := context.Background()

	ragStore, err := rag.NewStore(cfg.RAG, apiKey)
	if err != nil {
		logx.Fatal().Err(err).Msg("open document index")
	}
	if *ingestDir != "" {
		n, err := ragStore.Ingest(ctx, *ingestDir)
		if err != nil {
			logx.Fatal().Err(err).Str("dir", *ingestDir).Msg("ingest documents")
		}
		logx.Info().Int("chunks", n).Str("dir", *ingestDir).Msg("documents indexed")
		return
	}

	appDB, err := storage.Open("app", cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("open app database")
	}
	defer appDB.Close()
	if err := storage.Migrate(appDB, cfg.Databases["app"].Driver); err != nil {
		logx.Fatal().Err(err).Msg("migrate app database")
	}

	dataDB, err := storage.Open("data", cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("open data database")
	}
	defer dataDB.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(cfg.Redis)
		if err != nil {
			logx.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
	}

	var counter tokenizer.Counter
	if tk, err := tokenizer.NewTiktokenCounter(); err != nil {
		logx.Warn().Err(err).Msg("tiktoken unavailable, falling back to heuristic token counting")
		counter = tokenizer.HeuristicCounter{}
	} else {
		counter = tk
	}

	chatModel, err := ai.NewChatModel(ctx, provider, provCfg, apiKey)
	if err != nil {
		logx.Fatal().Err(err).Str("provider", provider).Msg("init chat model")
	}

	var memory ai.Memory
	switch {
	case !cfg.Router.MemoryEnabled():
		memory = ai.NoopMemory{}
	case rdb != nil:
		memory = ai.NewRedisMemory(rdb, time.Duration(cfg.Router.MemoryTTL)*time.Minute)
	default:
		memory = ai.NewLocalMemory()
	}

	dialect := cfg.Databases["data"].Driver
	orchestrator, err := ai.NewOrchestrator(ctx, ai.Config{
		Model:           chatModel,
		DataDB:          dataDB,
		Dialect:         dialect,
		Retriever:       ragStore,
		Chart:           chart.NewTool(dataDB),
		Memory:          memory,
		MaxQueryRetries: cfg.Router.MaxQueryRetries,
		Mode:            cfg.Router.Mode,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("init orchestrator")
	}

	manager, err := worker.NewManager(orchestrator, worker.Options{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		AskTimeout:  time.Duration(cfg.BasicConfig.RequestTimeout) * time.Second,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("init worker manager")
	}

	assistantService := assistant.NewService(appDB)

	if *repl {
		runREPL(ctx, assistantService, manager, counter)
		return
	}

	cleanCtx, cleanCancel := context.WithCancel(ctx)
	defer cleanCancel()
	assistantService.StartSessionCleaner(cleanCtx, assistant.DefaultSessionCleanupInterval, assistant.DefaultSessionRetention)

	titler := assistant.NewTitler(chatModel)
	handlers := api.NewHandler(assistantService, manager, counter, titler)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	logx.Info().Str("addr", addr).Str("provider", provider).Msg("server starting")
	if err := router.Run(addr); err != nil {
		logx.Fatal().Err(err).Msg("server stopped")
	}
}

func resolveAPIKey(provider string, provCfg config.ProviderConfig) string {
	if provCfg.APIKey != "" {
		return provCfg.APIKey
	}
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// runREPL answers questions from stdin until exit or EOF. Every run is
// one session.
func runREPL(ctx context.Context, service *assistant.Service, manager *worker.Manager, counter tokenizer.Counter) {
	sessionID := uuid.NewString()
	if _, _, err := service.EnsureSession(ctx, sessionID); err != nil {
		logx.Fatal().Err(err).Msg("create session")
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Ask a question (exit or quit to leave).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lower := strings.ToLower(line); lower == "exit" || lower == "quit" {
			break
		}

		answer, err := manager.Ask(ctx, sessionID, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		tokensUsed := counter.Count(line) + counter.Count(answer.Text)
		if _, err := service.RecordExchange(ctx, sessionID, line, answer.Text, tokensUsed); err != nil {
			logx.Warn().Err(err).Msg("failed to record exchange")
		}
		if answer.Type == models.AnswerImage {
			fmt.Printf("(chart rendered, %d bytes of PNG)\n", len(answer.PNG))
			continue
		}
		fmt.Println(answer.Text)
	}
}
