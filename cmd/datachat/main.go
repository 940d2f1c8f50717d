package main

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/datachat-ai/datachat/internal/agent"
	"github.com/datachat-ai/datachat/internal/api"
	"github.com/datachat-ai/datachat/internal/config"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/relationship"
	"github.com/datachat-ai/datachat/internal/schema"
	"github.com/datachat-ai/datachat/internal/semantic"
	"github.com/datachat-ai/datachat/internal/transcript"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

func main() {
	ctx := context.Background()
	logger := observability.NewLogger("main")

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	gin.SetMode(cfg.Server.Mode)

	// Analytics warehouse
	wh, err := warehouse.Open(cfg.Warehouse.Path, cfg.Agent.RowLimit)
	if err != nil {
		log.Fatal("Failed to open warehouse:", err)
	}
	defer wh.Close()

	// Semantic index over pgvector
	index, err := semantic.NewPostgresIndex(semantic.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     fmt.Sprintf("%d", cfg.Database.Port),
		Database: cfg.Database.Database,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal("Failed to connect to semantic index:", err)
	}
	defer index.Close()

	// Conversation transcripts
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	transcripts := transcript.NewStore(rdb)

	// Model runtime, wrapped with a circuit breaker
	ollama, err := llm.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, cfg.Ollama.Timeout)
	if err != nil {
		log.Fatal("Failed to initialize LLM client:", err)
	}
	llmClient := llm.NewCircuitBreakerClient(ollama, "ollama", llm.DefaultCircuitBreakerConfig)

	// Table relationships
	rels, err := relationship.NewStore(cfg.Warehouse.RelationshipsPath)
	if err != nil {
		log.Fatal("Failed to load relationships:", err)
	}

	// Schema metadata cache feeding the prompt summary and every table
	// membership check in the pipeline
	cache := warehouse.NewSchemaCache(cfg.Agent.SchemaCacheTTL, wh.Schema)

	indexer := semantic.NewIndexer(wh, index, llmClient)
	resolver := schema.NewResolver(index, llmClient, cache, cfg.Agent.TopK)

	// Table synonyms derived from the loaded schema
	var synonyms *agent.SynonymTable
	if tables, err := cache.ListTables(ctx); err == nil && len(tables) > 0 {
		synonyms = agent.NewSynonymTable(agent.SynonymsForTables(tables))
	}

	ag := agent.New(agent.Config{
		Router:      agent.NewRouter(llmClient),
		Structurer:  schema.NewStructurer(resolver, rels),
		Planner:     agent.NewPlanner(llmClient, cache.Summary, rels.Describe, synonyms, cfg.Agent.ErrorDetailLimit),
		Validator:   agent.NewValidator(wh, cache, index, llmClient),
		Corrector:   agent.NewCorrector(cache, index, llmClient, cfg.Agent.MaxSQLRetries),
		Executor:    wh,
		Interpreter: agent.NewInterpreter(llmClient, cache.Summary),
		Charts:      agent.NewChartGenerator(llmClient),
		Transcripts: transcripts,
	})

	healthChecker := observability.NewHealthChecker()
	healthChecker.Register("warehouse", observability.WarehouseHealthCheck(wh.Ping))
	healthChecker.Register("index", observability.IndexHealthCheck(index.Ping))
	healthChecker.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	healthChecker.Register("memory", observability.MemoryHealthCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))

	server := api.NewServer(api.ServerConfig{
		Agent:       ag,
		Transcripts: transcripts,
		Warehouse:   wh,
		Cache:       cache,
		Indexer:     indexer,
		Index:       index,
		Rels:        rels,
		Health:      healthChecker,
		UploadsDir:  cfg.Warehouse.UploadsDir,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info(ctx, "datachat starting", map[string]interface{}{
		"addr":        addr,
		"chat_model":  cfg.Ollama.ChatModel,
		"embed_model": cfg.Ollama.EmbedModel,
	})
	if err := server.Routes().Run(addr); err != nil {
		logger.Error(ctx, "server stopped", err, nil)
		log.Fatal("Failed to start server:", err)
	}
}
