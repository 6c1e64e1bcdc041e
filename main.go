package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atlas-iam/gatekeeper/audit"
	"github.com/atlas-iam/gatekeeper/backend"
	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	"github.com/atlas-iam/gatekeeper/controller"
	"github.com/atlas-iam/gatekeeper/db"
	"github.com/atlas-iam/gatekeeper/guardian"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/middleware"
	"github.com/atlas-iam/gatekeeper/pdp"
	"github.com/atlas-iam/gatekeeper/router"
	"github.com/atlas-iam/gatekeeper/store"
	"github.com/atlas-iam/gatekeeper/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger()
	defer logger.Sync()

	settings := config.AuthSettings()
	if settings.SecretKey == "" {
		logger.Fatal("auth.secretKey is not configured")
	}

	// Initialize Postgres
	if err := db.InitPostgres(); err != nil {
		logger.Fatal("Failed to initialize Postgres", zap.Error(err))
	}
	defer db.ClosePostgres()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	// Initialize services and utilities
	validationUtil := util.NewValidationUtil()
	auditRepository, err := audit.NewElasticsearchRepository(config.GetString("elasticsearch.url"))
	if err != nil {
		logger.Fatal("Failed to initialize audit repository", zap.Error(err))
	}
	auditService := audit.NewService(auditRepository)

	// Stores and codecs
	userStore := store.NewPostgresUserStore(db.PgPool, "", "")
	sessionStore := store.NewRedisSessionStore(db.RedisClient)
	tokens, err := codec.NewJWT(settings.JWTAlgorithm, settings.SecretKey, settings.Issuer, settings.SessionTimeout)
	if err != nil {
		logger.Fatal("Failed to initialize token codec", zap.Error(err))
	}
	hasher := codec.NewPasswordHasher()

	// Authentication backends, in configured chain order
	registry, err := buildRegistry(settings, userStore, userStore, sessionStore, tokens, hasher, eventBus)
	if err != nil {
		logger.Fatal("Failed to build auth backends", zap.Error(err))
	}
	if err := registry.OnStartup(ctx); err != nil {
		logger.Fatal("Backend startup failed", zap.Error(err))
	}
	defer registry.OnCleanup(context.Background())

	// Policy decision point and enforcement facade
	decisionPoint, err := buildPDP()
	if err != nil {
		logger.Fatal("Failed to load policies", zap.Error(err))
	}
	guard := guardian.New(decisionPoint, settings.DefaultAllow, eventBus)

	// Record auth activity: audit trail plus last_login bookkeeping
	subscribeLoginCallbacks(eventBus, auditService)
	subscribeDecisionCallbacks(eventBus, auditService)

	// Initialize controllers
	controllers := &controller.Controllers{
		Auth:   controller.NewAuthController(settings, registry, sessionStore, tokens, auditService),
		Policy: controller.NewPolicyController(decisionPoint, validationUtil, auditService),
	}

	authMiddleware := middleware.NewAuthMiddleware(
		settings,
		sessionStore,
		tokens,
		middleware.NewAllowHosts(settings.AllowedHosts),
	)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engine := router.SetupRouter(controllers, authMiddleware, guard, 100, time.Minute)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engine,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

// buildRegistry wires the configured backend chain. Order in the
// configuration is the order the registry tries them in.
func buildRegistry(
	settings *config.Settings,
	users store.UserStore,
	keys store.APIKeyStore,
	sessions store.SessionStore,
	tokens *codec.JWT,
	hasher *codec.PasswordHasher,
	events *util.EventBus,
) (*backend.Registry, error) {
	var backends []backend.Backend
	for _, name := range settings.Backends {
		switch name {
		case "basic":
			backends = append(backends, backend.NewBasicAuth(settings, users, sessions, tokens, hasher, events))
		case "apikey":
			cipher, err := codec.NewCipher(settings.SecretKey)
			if err != nil {
				return nil, err
			}
			backends = append(backends, backend.NewAPIKeyAuth(settings, users, keys, sessions, tokens, cipher, events))
		case "partner":
			partner, err := backend.NewPartnerAuth(settings, users, sessions, tokens, events)
			if err != nil {
				return nil, err
			}
			backends = append(backends, partner)
		default:
			return nil, fmt.Errorf("unknown auth backend: %s", name)
		}
	}
	return backend.NewRegistry(backends...), nil
}

// buildPDP loads the initial policy set from configuration.
func buildPDP() (*pdp.PDP, error) {
	var policies []*pdp.Policy
	if err := viper.UnmarshalKey("auth.policies", &policies); err != nil {
		return nil, err
	}
	return pdp.NewPDP(policies...)
}

// subscribeLoginCallbacks registers the post-login side effects: an
// audit trail entry and a last_login update on the user record.
func subscribeLoginCallbacks(eventBus *util.EventBus, auditService audit.Service) {
	eventBus.Subscribe(util.EventLogin, func(ctx context.Context, event util.Event) error {
		login, ok := event.Payload.(backend.LoginEvent)
		if !ok {
			return nil
		}
		return auditService.LogEvent(ctx, audit.AuthEvent{
			Timestamp:     time.Now().UTC(),
			UserID:        fmt.Sprint(login.Principal.ID),
			Username:      login.Principal.Username,
			Action:        audit.ActionLogin,
			Backend:       login.Backend,
			AccessGranted: true,
		})
	})
	eventBus.Subscribe(util.EventLogin, func(ctx context.Context, event util.Event) error {
		login, ok := event.Payload.(backend.LoginEvent)
		if !ok {
			return nil
		}
		_, err := db.PgPool.Exec(ctx,
			`UPDATE auth.users SET last_login = NOW() WHERE user_id = $1`,
			login.Principal.ID)
		return err
	})
}

// subscribeDecisionCallbacks writes every authorization verdict to the
// audit trail.
func subscribeDecisionCallbacks(eventBus *util.EventBus, auditService audit.Service) {
	eventBus.Subscribe(util.EventDecision, func(ctx context.Context, event util.Event) error {
		verdict, ok := event.Payload.(guardian.DecisionEvent)
		if !ok {
			return nil
		}
		action := audit.ActionAccessDenied
		if verdict.Granted {
			action = audit.ActionAccessGrant
		}
		authEvent := audit.AuthEvent{
			Timestamp:     time.Now().UTC(),
			Action:        action,
			Resource:      verdict.Path,
			Method:        verdict.Method,
			AccessGranted: verdict.Granted,
			PolicyName:    verdict.Decision.Policy,
		}
		if verdict.Principal != nil {
			authEvent.UserID = fmt.Sprint(verdict.Principal.ID)
			authEvent.Username = verdict.Principal.Username
		}
		return auditService.LogEvent(ctx, authEvent)
	})
}
