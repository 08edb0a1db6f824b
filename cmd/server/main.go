package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/npezzotti/medchat/internal/api"
	"github.com/npezzotti/medchat/internal/chat"
	"github.com/npezzotti/medchat/internal/config"
	"github.com/npezzotti/medchat/internal/database"
	"github.com/npezzotti/medchat/internal/ratelimit"
	"github.com/npezzotti/medchat/internal/relay"
	"github.com/npezzotti/medchat/internal/server"
	"github.com/npezzotti/medchat/internal/stats"
	"github.com/npezzotti/medchat/internal/types"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

// store is a chat repository that can also be seeded with accounts.
type store interface {
	database.ChatRepository
	AddUser(ctx context.Context, u database.User) error
}

var (
	addr           string
	storeKind      string
	dsn            string
	mongoDatabase  string
	signingKey     string
	redisAddr      string
	natsURL        string
	messageRate    string
	runMigrations  bool
	seed           bool
	seedPassword   string
	allowedOrigins stringSliceFlag
)

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := log.New(os.Stderr, "[medchat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Println("load .env:", err)
	}

	flag.StringVar(&addr, "addr", envOr("MEDCHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&storeKind, "store", envOr("MEDCHAT_STORE", config.StorePostgres), "backing store: postgres, mongo or memory")
	flag.StringVar(&dsn, "dsn", envOr("MEDCHAT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&mongoDatabase, "mongo-db", envOr("MEDCHAT_MONGO_DB", "medchat"), "mongo database name")
	flag.StringVar(&signingKey, "signing-key", envOr("MEDCHAT_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&redisAddr, "redis-addr", envOr("MEDCHAT_REDIS_ADDR", ""), "redis address for send rate limiting, disabled when empty")
	flag.StringVar(&natsURL, "nats-url", envOr("MEDCHAT_NATS_URL", ""), "nats url for cross-instance delivery, disabled when empty")
	flag.StringVar(&messageRate, "message-rate", envOr("MEDCHAT_MESSAGE_RATE", "20/10s"), "per-user send limit as <count>/<window>")
	flag.BoolVar(&runMigrations, "migrate", false, "apply postgres migrations before starting")
	flag.BoolVar(&seed, "seed", false, "create demo accounts on startup")
	flag.StringVar(&seedPassword, "seed-password", envOr("MEDCHAT_SEED_PASSWORD", "medchat"), "password of the demo accounts")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("MEDCHAT_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins.Set(v)
		}
	}

	cfg, err := config.NewConfig(addr, storeKind, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.MongoDatabase = mongoDatabase
	cfg.RedisAddr = redisAddr
	cfg.NatsURL = natsURL
	cfg.MessageLimit, cfg.MessageWindow, err = config.ParseRate(messageRate)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if runMigrations && cfg.Store == config.StorePostgres {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	db, err := openStore(cfg)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if seed || cfg.Store == config.StoreMemory {
		if err := seedUsers(db, seedPassword); err != nil {
			logger.Fatal("seed:", err)
		}
		logger.Println("demo accounts created")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	var (
		opts    []server.Option
		limiter server.Limiter
	)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		limiter = ratelimit.NewLimiter(logger, rdb, cfg.MessageLimit, cfg.MessageWindow)
		opts = append(opts, server.WithLimiter(limiter))
	}

	var natsRelay *relay.NatsRelay
	if cfg.NatsURL != "" {
		natsRelay, err = relay.NewNatsRelay(logger, cfg.NatsURL)
		if err != nil {
			logger.Fatal("nats connect:", err)
		}
		opts = append(opts, server.WithRelay(natsRelay))
	}

	chatService := chat.NewChatService(logger, db)

	chatServer, err := server.NewChatServer(logger, chatService, statsUpdater, server.NewPresence(), opts...)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	if natsRelay != nil {
		if err := natsRelay.Subscribe(chatServer.DeliverRelayed); err != nil {
			logger.Fatal("nats subscribe:", err)
		}
	}

	srv := api.NewChatApp(mux, logger, chatServer, chatService, db, limiter, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

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
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	if natsRelay != nil {
		if err := natsRelay.Close(); err != nil {
			logger.Println("nats drain:", err)
		}
	}

	logger.Println("shutdown complete")
}

func openStore(cfg *config.Config) (store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return database.NewMongoChatRepository(ctx, cfg.DatabaseDSN, cfg.MongoDatabase)
	case config.StoreMemory:
		return database.NewMemoryChatRepository(), nil
	default:
		return database.NewPgChatRepository(cfg.DatabaseDSN)
	}
}

type demoAccount struct {
	name  string
	email string
	role  string
}

var demoAccounts = []demoAccount{
	{name: "Dr. Gregory Hale", email: "doctor@medchat.local", role: types.RoleDoctor},
	{name: "Jamie Patient", email: "patient@medchat.local", role: types.RolePatient},
	{name: "Clinic Admin", email: "admin@medchat.local", role: types.RoleAdmin},
}

// seedUsers upserts the demo accounts. Ids are derived from the email so
// repeated seeding keeps the same accounts.
func seedUsers(db store, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, a := range demoAccounts {
		u := database.User{
			Id:           uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+a.email)).String(),
			Name:         a.name,
			EmailAddress: a.email,
			Role:         a.role,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := db.AddUser(ctx, u); err != nil {
			return err
		}
	}

	return nil
}
