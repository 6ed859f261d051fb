package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/onlinex/onlinex/internal/agent"
	"github.com/onlinex/onlinex/internal/api"
	"github.com/onlinex/onlinex/internal/config"
	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/memory"
	"github.com/onlinex/onlinex/internal/rooms"
	"github.com/onlinex/onlinex/internal/server"
	"github.com/onlinex/onlinex/internal/stats"
	"github.com/onlinex/onlinex/internal/sweeper"
)

const defaultSigningKey = "dGhpcy1pcy1hLWRldi1vbmx5LXNpZ25pbmcta2V5LTAx"

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	redisAddr      string
	signingKey     string
	migrationsURL  string
	generatorURL   string
	generatorKey   string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis address for short-term history")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&migrationsURL, "migrations", "file://db/migrations", "migrations source URL")
	flag.StringVar(&generatorURL, "generator-url", "https://api.openai.com/v1/chat/completions", "chat completions endpoint")
	flag.StringVar(&generatorKey, "generator-key", os.Getenv("GENERATOR_API_KEY"), "chat completions API key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[onlinex] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, redisAddr, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.GeneratorURL = generatorURL
	cfg.GeneratorKey = generatorKey

	dbConn, err := database.NewPgOnlinexRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(migrationsURL); err != nil {
		logger.Fatal("migrate:", err)
	}

	history := memory.NewRedisHistory(cfg.RedisAddr, cfg.HistoryTTL)
	defer func() {
		if err := history.Close(); err != nil {
			logger.Println("redis close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.RegisterMetric(stats.Connections)
	statsUpdater.RegisterMetric(stats.RoomsLoaded)
	statsUpdater.RegisterMetric(stats.MessagesBroadcast)
	statsUpdater.RegisterMetric(stats.CompactionsRun)

	generator := agent.NewOpenAIGenerator(cfg.GeneratorURL, cfg.GeneratorKey)
	engine, err := agent.NewChatEngine(logger, dbConn, history, generator, statsUpdater,
		cfg.CompactThreshold, cfg.CompactKeep)
	if err != nil {
		logger.Fatal("new chat engine:", err)
	}

	hub := server.NewHub(logger, statsUpdater)
	chatServer := server.NewChatServer(logger, dbConn, hub, engine, statsUpdater)
	roomSvc := rooms.NewService(logger, dbConn, cfg.RoomLifetime)

	srv := api.NewOnlinexApp(mux, logger, chatServer, roomSvc, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.NewSweeper(logger, dbConn, cfg.SweepInterval).Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	stopSweeper()
	logger.Println("shutdown complete")
}
