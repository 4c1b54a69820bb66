package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbridge/config"
	"chatbridge/db"
	"chatbridge/realtime"
	"chatbridge/router"
	"chatbridge/services"
	"chatbridge/workers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =====================
// ENV esperadas
// =====================
//
// - CHATBRIDGE_CONFIG                   (caminho do config.json, default config.json)
// - CHATBRIDGE_API_PORT                 (ex: 8080)
// - CHATBRIDGE_SECURITY_JWT_SECRET      (mesmo segredo do login do CRM)
// - CHATBRIDGE_WHATSAPP_VERIFY_TOKEN    (fallback: WEBHOOK_VERIFY_TOKEN)
// - CHATBRIDGE_WHATSAPP_APP_SECRET      (valida X-Hub-Signature-256)
//
// Credenciais do WhatsApp (api key, phone number id) ficam no banco e são
// configuradas por um admin em /api/whatsapp/config.
// =====================

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "chatbridge",
		Short:         "Chat do CRM com ponte para o WhatsApp Business",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getenv("CHATBRIDGE_CONFIG", "config.json"), "arquivo de configuração (json)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Sobe a API HTTP, o webhook e o worker de status",
		RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Cria/atualiza as tabelas e sai",
		RunE:  func(cmd *cobra.Command, args []string) error { return migrate() },
	})

	if err := root.Execute(); err != nil {
		// o logger global já foi restaurado aqui
		fmt.Fprintln(os.Stderr, "chatbridge:", err)
		os.Exit(1)
	}
}

func load() (config.Configuration, func(), error) {
	// .env é opcional
	_ = godotenv.Load()

	conf, err := config.Get(configPath)
	if err != nil {
		return config.Configuration{}, func() {}, err
	}

	logger, err := newLogger(conf)
	if err != nil {
		return config.Configuration{}, func() {}, err
	}
	restore := zap.ReplaceGlobals(logger)
	return conf, func() {
		_ = logger.Sync()
		restore()
	}, nil
}

func newLogger(conf config.Configuration) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if conf.LogDevelopment {
		cfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(conf.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func migrate() error {
	conf, done, err := load()
	if err != nil {
		return err
	}
	defer done()

	if conf.InsecureJWTSecret() {
		if !conf.LogDevelopment {
			return errors.New("security.jwt_secret is not set (use CHATBRIDGE_SECURITY_JWT_SECRET)")
		}
		zap.L().Warn("chatbridge: using the placeholder jwt secret, tokens are forgeable")
	}

	db.SetConfigurations(conf)
	database, err := db.Connect()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	zap.L().Info("chatbridge: migrations applied")
	return nil
}

func serve() error {
	conf, done, err := load()
	if err != nil {
		return err
	}
	defer done()

	db.SetConfigurations(conf)
	database, err := db.Connect()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(conf.Cors.AllowedOrigins)
	app := services.NewApp(database, conf, hub)

	statusDone := workers.StartStatusProcessor(ctx, database, app.Tracker)

	if !conf.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	router.Initialize(engine, conf, app, hub)

	srv := &http.Server{
		Addr:              ":" + conf.ApiPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("chatbridge: listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		stop()
		app.Webhooks.Wait()
		<-statusDone
		return err
	case <-ctx.Done():
	}

	zap.L().Info("chatbridge: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	hub.Close()
	// webhooks já aceitos terminam antes de fechar o banco
	app.Webhooks.Wait()
	<-statusDone
	return err
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
