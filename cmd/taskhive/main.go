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

	"taskhive/server/internal/assistant"
	"taskhive/server/internal/auth"
	"taskhive/server/internal/category"
	"taskhive/server/internal/command"
	"taskhive/server/internal/config"
	"taskhive/server/internal/db"
	"taskhive/server/internal/httpapi"
	"taskhive/server/internal/logging"
	"taskhive/server/internal/mailer"
	"taskhive/server/internal/provider"
	"taskhive/server/internal/task"
)

var version = "dev"
var buildTime = "unknown"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig:   config.Load,
		RunServe:     runServe,
		RunMigrateUp: runMigrateUp,
	})

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.New(logging.Options{Level: "error"}).Error("taskhive failed", "err", err)
		os.Exit(1)
	}
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runServe(ctx context.Context, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required (set TASKHIVE_JWT_SECRET or the config file)")
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel})

	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.AccessTokenTTLMin)*time.Minute)

	var mail mailer.Mailer = mailer.Nop{}
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTPMailer(mailer.Config{
			Host:         cfg.SMTP.Host,
			Port:         cfg.SMTP.Port,
			Username:     cfg.SMTP.Username,
			Password:     cfg.SMTP.Password,
			From:         cfg.SMTP.From,
			ResetBaseURL: cfg.SMTP.ResetBaseURL,
		})
	}

	authService := auth.NewService(gdb, tokens, mail, time.Duration(cfg.RefreshTokenTTLHours)*time.Hour)
	tasks := task.NewService(gdb)
	categories := category.NewService(gdb)

	llm := provider.NewOpenAIClient(provider.OpenAIConfig{
		BaseURL:   cfg.OpenAI.Endpoint,
		APIKey:    cfg.OpenAI.APIKey,
		Model:     cfg.OpenAI.Model,
		TimeoutMS: cfg.OpenAI.TimeoutMS,
	})
	orchestrator := assistant.NewOrchestrator(gdb, tasks, llm, logging.Module(logger, "assistant"), cfg.CreatorInfo)

	server := httpapi.NewServer(httpapi.Deps{
		Auth:       authService,
		Tokens:     tokens,
		Tasks:      tasks,
		Categories: categories,
		Assistant:  orchestrator,
		Log:        logging.Module(logger, "httpapi"),
		Debug:      cfg.Debug,
	})

	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	logger.Info("taskhive listening", "addr", addr, "version", version, "built", buildTime)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
