package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"coinrush/internal/api"
	"coinrush/internal/arena"
	"coinrush/internal/config"
	"coinrush/internal/leaderboard"
	"coinrush/internal/monitoring"
	"coinrush/internal/store"
	"coinrush/internal/wallet"
)

func main() {
	// Загружаем переменные окружения
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище результатов и транзакций
	st := openStore(ctx, cfg)
	defer st.Close()

	// Таблица лидеров
	board := openBoard(ctx, cfg)

	chain, err := wallet.NewChain(wallet.Options{
		RequiredWallet: cfg.RequiredWallet,
		Treasury:       cfg.TreasuryWallet,
		FailProb:       cfg.EntryFailProb,
		DelayScale:     cfg.TxDelayScale,
		DailyBonus:     cfg.DailyBonus,
		Recorder:       st,
	})
	if err != nil {
		log.Fatalf("Failed to initialize wallet chain: %v", err)
	}
	if cfg.SolanaRPCURL != "" {
		go func() {
			info := wallet.Probe(ctx, cfg.SolanaRPCURL)
			if !info.Reachable {
				log.Printf("Warning: Solana RPC %s unreachable: %s", info.RPCEndpoint, info.Error)
				return
			}
			log.Printf("Solana RPC %s: version %s, slot %d", info.RPCEndpoint, info.SolanaVersion, info.CurrentSlot)
		}()
	}

	// Мониторинг
	metrics := monitoring.NewMetrics(cfg.MetricsPort)
	go metrics.RunCollector(ctx, 15*time.Second)

	ar, err := arena.New(arena.Options{
		Cfg:     cfg,
		Chain:   chain,
		Store:   st,
		Board:   board,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("Failed to initialize arena: %v", err)
	}
	go ar.Run(ctx)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	apiServer, err := api.NewServer(api.Options{
		Cfg:     cfg,
		Arena:   ar,
		Chain:   chain,
		Store:   st,
		Board:   board,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("Failed to initialize API: %v", err)
	}

	go func() {
		if err := metrics.StartServer(apiServer.Health); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	log.Printf("coin rush server started on port %d", cfg.Port)
	log.Printf("Prometheus metrics available on port %d", cfg.MetricsPort)

	// Ожидание сигнала для graceful shutdown
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := ar.Shutdown(shutdownCtx); err != nil {
		log.Printf("Arena shutdown: %v", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics shutdown: %v", err)
	}

	log.Println("Server shutdown completed")
}

// openStore connects Postgres when DATABASE_URL is set and falls back to
// memory otherwise.
func openStore(ctx context.Context, cfg config.Config) store.Store {
	if cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL not set, results kept in memory")
		return store.NewMemory()
	}
	pg, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("Warning: database unavailable, results kept in memory: %v", err)
		return store.NewMemory()
	}
	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return pg
}

func openBoard(ctx context.Context, cfg config.Config) leaderboard.Board {
	rdb, err := leaderboard.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: redis unavailable, leaderboard kept in memory: %v", err)
		return leaderboard.NewMemory()
	}
	if rdb == nil {
		return leaderboard.NewMemory()
	}
	return leaderboard.NewRedis(rdb)
}
