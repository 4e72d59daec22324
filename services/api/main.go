package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mentorlink/internal/auth"
	"github.com/mentorlink/internal/config"
	"github.com/mentorlink/internal/guard"
	"github.com/mentorlink/internal/handler"
	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/middleware"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/push"
	"github.com/mentorlink/internal/repository"
	"github.com/mentorlink/internal/service"
	"github.com/mentorlink/internal/startup"
	"github.com/mentorlink/internal/storage"
	"github.com/mentorlink/internal/storage/memory"
	"github.com/mentorlink/internal/ws"
)

const tokenValidity = 24 * time.Hour

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and seeded demo accounts")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	// Rate counters live in Redis when configured so limits survive restarts;
	// without Redis the in-memory store covers a single instance.
	var limitStore storage.RateLimitStore
	var notifier *push.Notifier
	if cfg.Redis.URL != "" {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
		defer redisClient.Close()
		limitStore = redisClient
		logger.Info("redis connected")
		if cfg.PushEnabled {
			keys, err := push.EnsureVAPIDKeys("")
			if err != nil {
				logger.Errorf("VAPID keys: %v (push disabled)", err)
			} else {
				notifier = push.NewNotifier(redisClient.Underlying(), keys)
			}
		}
	} else {
		limitStore = memory.New()
		logger.Info("no REDIS_URL, using in-memory rate counters (push disabled)")
	}

	userRepo := repository.NewUserRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)

	if *dev {
		seedDevData(pool, userRepo, groupRepo)
	}

	authn := auth.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer, tokenValidity)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(groupRepo, cfg.MaxWSConnections)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	pipeline := guard.NewPipeline(limitStore, cfg.GuardBypass)
	var svcNotifier service.Notifier
	if notifier != nil {
		svcNotifier = notifier
	}
	svc := service.NewMessageService(pipeline, msgRepo, userRepo, groupRepo, hub, svcNotifier)

	msgH := handler.NewMessageHandler(svc)
	convH := handler.NewConversationHandler(svc)
	userH := handler.NewUserHandler(userRepo)
	groupH := handler.NewGroupHandler(groupRepo)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	var pushH *handler.PushHandler
	if notifier != nil {
		pushH = handler.NewPushHandler(notifier)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress the WebSocket upgrade: the wrapped ResponseWriter would
	// lose http.Hijacker and the handshake returns 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI(limitStore))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	if pushH != nil {
		r.Get("/api/push/vapid-public", pushH.VAPIDPublic)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(authn, userRepo))
		r.Get("/api/users/me", userH.GetProfile)
		r.Get("/api/users/me/mentees", userH.GetMentees)
		r.Put("/api/users/{id}/disable", userH.SetDisabled)
		r.Get("/api/conversations", convH.List)
		r.Get("/api/groups/{id}", groupH.Get)
		r.Post("/api/messages", msgH.Send)
		r.Get("/api/messages/{conversationType}/{conversationId}", msgH.History)
		r.Post("/api/messages/{messageId}/read", msgH.MarkRead)
		r.Post("/api/messages/{messageId}/pin", msgH.Pin)
		r.Delete("/api/messages/{messageId}/pin", msgH.Unpin)
		if pushH != nil {
			r.Post("/api/push/subscribe", pushH.Subscribe)
			r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		}
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	files := []string{
		"migrations/001_init.sql",
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Errorf("read migration %s: %v", f, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", f, err)
			os.Exit(1)
		}
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "mentorlink"
		password = "mentorlink_secret"
		database = "mentorlink"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	return db, nil
}

// seedDevData creates a demo mentor, two mentees and a group on first -dev
// start so the API is usable without an admin tool.
func seedDevData(pool *pgxpool.Pool, users *repository.UserRepository, groups *repository.GroupRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil || count > 0 {
		return
	}

	now := time.Now().UTC()
	mentor := &model.User{
		ID: uuid.NewString(), Username: "demo-mentor", Email: "mentor@example.test",
		Role: model.RoleMentor, CreatedAt: now,
	}
	if err := users.Create(ctx, mentor); err != nil {
		logger.Errorf("seed mentor: %v", err)
		return
	}
	menteeIDs := make([]string, 0, 2)
	for i, name := range []string{"demo-mentee-1", "demo-mentee-2"} {
		mentee := &model.User{
			ID: uuid.NewString(), Username: name,
			Email: fmt.Sprintf("mentee%d@example.test", i+1),
			Role:  model.RoleMentee, MentorID: &mentor.ID, CreatedAt: now,
		}
		if err := users.Create(ctx, mentee); err != nil {
			logger.Errorf("seed mentee: %v", err)
			return
		}
		menteeIDs = append(menteeIDs, mentee.ID)
	}
	group := &model.Group{
		ID: uuid.NewString(), Name: "Demo Cohort",
		Description: "Seeded development group", MentorID: mentor.ID, CreatedAt: now,
	}
	if err := groups.Create(ctx, group); err != nil {
		logger.Errorf("seed group: %v", err)
		return
	}
	for _, id := range append([]string{mentor.ID}, menteeIDs...) {
		if err := groups.AddMember(ctx, &model.GroupMember{GroupID: group.ID, UserID: id, JoinedAt: now}); err != nil {
			logger.Errorf("seed membership: %v", err)
			return
		}
	}
	logger.Infof("seeded dev data: mentor=%s group=%s", mentor.ID, group.ID)
}
