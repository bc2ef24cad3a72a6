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

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sitechat/sitechat/internal/api"
	"github.com/sitechat/sitechat/internal/chat"
	"github.com/sitechat/sitechat/internal/config"
	"github.com/sitechat/sitechat/internal/database"
	"github.com/sitechat/sitechat/internal/directory"
	"github.com/sitechat/sitechat/internal/notify"
	"github.com/sitechat/sitechat/internal/server"
	"github.com/sitechat/sitechat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr               string
	dsn                string
	signingKey         string
	redisURL           string
	maxAttachmentBytes int64
	allowedOrigins     stringSliceFlag
	allowedExtensions  stringSliceFlag
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional, flags and the environment take precedence
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("SITECHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("SITECHAT_DSN",
		"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("SITECHAT_SIGNING_KEY"), "base64 encoded signing key")
	flag.StringVar(&redisURL, "redis-url", os.Getenv("SITECHAT_REDIS_URL"),
		"redis URL for multi-node notification fan-out (empty for single-node)")
	flag.Int64Var(&maxAttachmentBytes, "max-attachment-bytes", 0, "maximum attachment size in bytes (0 for default)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Var(&allowedExtensions, "allowed-extensions", "comma-separated list of allowed attachment extensions")
	flag.Parse()

	logger := log.New(os.Stderr, "[sitechat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, redisURL, maxAttachmentBytes, allowedExtensions)
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	dir, err := directory.NewPgDirectory(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("directory open:", err)
	}
	defer dir.Close()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	hub := server.NewHub(logger, nil)

	// with redis every publish round-trips through a channel, so all nodes,
	// this one included, deliver from the subscription
	var pub notify.Publisher = hub
	var bridge *notify.RedisBridge
	if cfg.RedisURL != "" {
		bridge, err = notify.NewRedisBridge(cfg.RedisURL, hub, logger)
		if err != nil {
			logger.Fatal("redis:", err)
		}
		defer bridge.Close()
		pub = bridge
	}

	notifier := notify.NewNotifier(logger, db, pub, statsUpdater)
	files := chat.NewFilePolicy(cfg.MaxAttachmentBytes, cfg.AllowedExtensions)
	chatService := chat.NewService(logger, db, dir, notifier, statsUpdater, files)
	hub.SetChatService(chatService)

	app := api.NewApp(mux, logger, hub, chatService, dir, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if bridge != nil {
		go bridge.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancelShutdown := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancelShutdown()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down hub...")
	hub.Shutdown()

	logger.Println("shutdown complete")
}
