package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"marketchat/internal/adapter/api"
	"marketchat/internal/adapter/api/handler"
	apimiddleware "marketchat/internal/adapter/api/middleware"
	"marketchat/internal/adapter/api/router"
	"marketchat/internal/adapter/repository"
	domainrepo "marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/auth"
	"marketchat/internal/infrastructure/firebase"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/internal/infrastructure/storage"
	"marketchat/internal/infrastructure/websocket"
	"marketchat/internal/usecase"
	"marketchat/pkg/config"
	"marketchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.UsesDefaultJWTSecret() {
		logger.Warn("JWT_SECRET is not set; sessions are signed with the built-in development secret")
	}

	ctx := context.Background()

	var (
		googleOpt    option.ClientOption
		googleLoaded bool
	)
	googleOption := func() option.ClientOption {
		if !googleLoaded {
			if googleOpt, err = firebase.ClientOption(cfg); err != nil {
				log.Fatalf("Failed to load Google credentials: %v", err)
			}
			googleLoaded = true
		}
		return googleOpt
	}

	var (
		conversationRepo domainrepo.ConversationRepository
		userRepo         domainrepo.UserRepository
	)
	switch cfg.StoreDriver {
	case config.StoreFirestore:
		firestoreClient, err := firebase.NewFirestoreClient(ctx, cfg.FirebaseProject, googleOption())
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		conversationRepo = repository.NewFirestoreConversationRepository(firestoreClient)
		userRepo = repository.NewFirestoreUserRepository(firestoreClient)
	case config.StoreSQLite:
		store, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open SQLite store: %v", err)
		}
		defer store.Close()

		conversationRepo = repository.NewSQLiteConversationRepository(store)
		userRepo = repository.NewSQLiteUserRepository(store)
	case config.StoreMemory:
		logger.Warn("Using in-memory store; conversations are lost on restart")
		conversationRepo = repository.NewMemoryConversationRepository()
		userRepo = repository.NewMemoryUserRepository()
	default:
		log.Fatalf("Unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var (
		verifier auth.TokenVerifier
		issuer   *auth.JWTVerifier
	)
	switch cfg.AuthMode {
	case config.AuthJWT:
		issuer = auth.NewJWTVerifier(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second)
		verifier = issuer
	case config.AuthJWKS:
		jwks, err := auth.NewRemoteJWKSVerifier(cfg.JWKSURL)
		if err != nil {
			log.Fatalf("Failed to load JWKS from %s: %v", cfg.JWKSURL, err)
		}
		defer jwks.Close()
		verifier = jwks
	case config.AuthFirebase:
		firebaseAuth, err := firebase.NewFirebaseAuthClient(ctx, cfg.FirebaseProject, googleOption())
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebaseAuth
	default:
		log.Fatalf("Unknown AUTH_MODE %q", cfg.AuthMode)
	}
	authenticator := auth.NewAuthenticator(verifier, userRepo)

	var attachments usecase.AttachmentUploader
	if cfg.StorageBucket != "" {
		var storageOpts []option.ClientOption
		if opt := googleOption(); opt != nil {
			storageOpts = append(storageOpts, opt)
		}
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, storageOpts...)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()
		attachments = storageClient
	}

	registry := websocket.NewRegistry()

	rateLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Rule{
		ratelimit.ActionSendMessage: {PerMinute: cfg.RateSendPerMinute, Burst: 10},
		ratelimit.ActionTyping:      {PerMinute: cfg.RateTypingPerMinute, Burst: 30},
	})
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	rateLimiter.StartCleanupRoutine(10*time.Minute, stopCleanup)

	chatUseCase := usecase.NewChatUseCase(conversationRepo, userRepo, registry, usecase.ChatOptions{
		RateLimiter:        rateLimiter,
		Attachments:        attachments,
		ExplicitJoinDenial: cfg.ExplicitJoinDenial,
	})
	userUseCase := usecase.NewUserUseCase(userRepo)

	handler.Setup(userUseCase, registry, issuer, userRepo)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authenticator)
	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(chatUseCase, authenticator, handler.WebSocketOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.WSSendBuffer,
	})

	router.Setup(e, authMiddleware, rateLimiter, chatHandler, wsHandler, cfg.Environment)

	go func() {
		logger.Info("Starting server on port %s (store=%s, auth=%s)", cfg.ServerPort, cfg.StoreDriver, cfg.AuthMode)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}
