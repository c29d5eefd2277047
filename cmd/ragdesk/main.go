package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/cache"
	"github.com/xxxsen/ragdesk/internal/config"
	"github.com/xxxsen/ragdesk/internal/db"
	"github.com/xxxsen/ragdesk/internal/embedcache"
	"github.com/xxxsen/ragdesk/internal/filestore"
	"github.com/xxxsen/ragdesk/internal/handler"
	"github.com/xxxsen/ragdesk/internal/job"
	"github.com/xxxsen/ragdesk/internal/middleware"
	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/jwt"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
	"github.com/xxxsen/ragdesk/internal/repo"
	"github.com/xxxsen/ragdesk/internal/schedule"
	"github.com/xxxsen/ragdesk/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragdesk",
		Short: "ragdesk document question answering service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragdesk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}

	var tokenTenant, tokenUser string
	var tokenTTL time.Duration
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for a tenant user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if tokenTenant == "" || tokenUser == "" {
				return fmt.Errorf("--tenant and --user are required")
			}
			ttl := tokenTTL
			if ttl <= 0 {
				ttl = time.Hour * time.Duration(cfg.JWTTTLHours)
			}
			token, err := jwt.GenerateToken(tokenUser, tokenTenant, []byte(cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime, defaults to jwt_ttl_hours")

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "remove documents stuck in the ingesting state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			docs := service.NewDocumentService(repo.NewDocumentRepo(conn))
			return schedule.RunOnce(cmd.Context(), job.NewIngestReconcileJob(docs, time.Duration(cfg.Ingest.StaleMinutes)*time.Minute))
		},
	}

	var tenantName string
	tenantCmd := &cobra.Command{Use: "tenant", Short: "manage tenants"}
	tenantCreateCmd := &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "create an active tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			now := timeutil.NowMilli()
			name := tenantName
			if name == "" {
				name = args[0]
			}
			return repo.NewTenantRepo(conn).Create(cmd.Context(), &model.Tenant{
				ID: args[0], Name: name, Active: true, Ctime: now, Mtime: now,
			})
		},
	}
	tenantCreateCmd.Flags().StringVar(&tenantName, "name", "", "display name")
	tenantSetActive := func(active bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			_, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return repo.NewTenantRepo(conn).SetActive(cmd.Context(), args[0], active, timeutil.NowMilli())
		}
	}
	tenantCmd.AddCommand(
		tenantCreateCmd,
		&cobra.Command{Use: "disable <tenant-id>", Short: "reject requests of a tenant", Args: cobra.ExactArgs(1), RunE: tenantSetActive(false)},
		&cobra.Command{Use: "enable <tenant-id>", Short: "accept requests of a tenant", Args: cobra.ExactArgs(1), RunE: tenantSetActive(true)},
	)

	rootCmd.AddCommand(runCmd, tokenCmd, reconcileCmd, tenantCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func buildEmbedder(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	embedder, err := ai.BuildEmbedder(cfg.AI.Embedders, cfg.AI.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if cfg.AI.EmbedDBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	if cfg.AI.EmbedCacheSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCacheSize, time.Duration(cfg.AI.EmbedCacheTTLSec)*time.Second)
	}
	return embedder, nil
}

func buildHistoryCache(ctx context.Context, cfg config.RedisConfig) (service.HistoryCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	return cache.NewHistoryCache(client, time.Duration(cfg.HistoryTTLSec)*time.Second), nil
}

func buildArchive(cfg config.FileStoreConfig) (filestore.Store, error) {
	if cfg.Type == "" {
		return nil, nil
	}
	return filestore.New(cfg)
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logutil.GetLogger(ctx)
	log.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Bool("history_cache", cfg.Redis.Addr != ""),
	)

	tenantRepo := repo.NewTenantRepo(conn)
	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	chatRepo := repo.NewChatRepo(conn)
	messageRepo := repo.NewMessageRepo(conn)
	feedbackRepo := repo.NewFeedbackRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	generator, err := ai.BuildGenerator(cfg.AI.Generators)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	embedder, err := buildEmbedder(cfg, cacheRepo)
	if err != nil {
		return err
	}
	manager := ai.NewManager(generator, generator, generator, generator, generator, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
		PivotLanguage: cfg.Retrieval.PivotLanguage,
	})
	historyCache, err := buildHistoryCache(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("init history cache: %w", err)
	}
	archive, err := buildArchive(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	ingestService := service.NewIngestService(repo.NewIngestStore(conn), embedder, archive, service.IngestOptions{
		ChunkSize:   cfg.Ingest.ChunkSize,
		Overlap:     cfg.Ingest.ChunkOverlap,
		EmbedBatch:  cfg.Ingest.EmbedBatch,
		InsertBatch: cfg.Ingest.InsertBatch,
	})
	documentService := service.NewDocumentService(docRepo)
	retrievalService := service.NewRetrievalService(chunkRepo, embedder, manager, cfg.Retrieval.RefusalThreshold)
	memory := service.NewMemory(messageRepo, historyCache, max(cfg.Retrieval.RewriteHistory, cfg.Retrieval.PromptHistory))
	chatService := service.NewChatService(chatRepo, memory, manager, retrievalService, service.ChatOptions{
		TopK:           cfg.Retrieval.TopK,
		MaxSnippets:    cfg.Retrieval.MaxSnippets,
		RewriteHistory: cfg.Retrieval.RewriteHistory,
		PromptHistory:  cfg.Retrieval.PromptHistory,
	})
	feedbackService := service.NewFeedbackService(feedbackRepo, messageRepo)

	scheduler := schedule.NewCronScheduler(schedule.WithRunTimeout(time.Duration(cfg.Schedule.RunTimeoutSec) * time.Second))
	if err := scheduler.AddJob(job.NewIngestReconcileJob(documentService, time.Duration(cfg.Ingest.StaleMinutes)*time.Minute), cfg.Schedule.ReconcileSpec); err != nil {
		return err
	}
	if cfg.AI.EmbedDBCache {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.AI.CacheMaxAgeDays), cfg.Schedule.CacheCleanupSpec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Documents:   handler.NewDocumentHandler(ingestService, documentService, archive, cfg.Ingest.MaxUploadBytes),
		Chats:       handler.NewChatHandler(chatService),
		Feedbacks:   handler.NewFeedbackHandler(feedbackService),
		Tenants:     tenantRepo,
		JWTSecret:   []byte(cfg.JWTSecret),
		AskInterval: time.Duration(cfg.AskIntervalSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	log.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("server stopping...")
	return nil
}
