package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/studyhall/internal/handler"
	appI18n "github.com/pavelanni/studyhall/internal/i18n"
	"github.com/pavelanni/studyhall/internal/ingest"
	"github.com/pavelanni/studyhall/internal/library"
	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/storage"
	"github.com/pavelanni/studyhall/internal/store"
	"github.com/pavelanni/studyhall/internal/study"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studyhall",
		Short:         "AI study companion: quizzes, syllabuses and grading from your own material",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), generateCmd(), ingestCmd(), planCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default language of API messages (en, ru)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (default: any)")
	f.Duration("request-timeout", 5*time.Minute, "Upper bound for a single request")
	addServiceFlags(cmd)
	return cmd
}

// addServiceFlags registers the flags every command that opens the knowledge
// base or calls the model needs.
func addServiceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "studyhall.db", "SQLite database path")
	f.String("blob-dir", "blobs", "Directory for uploaded diagram images")
	f.String("llm-provider", "openai", "Model provider (openai, gemini)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for the provider default)")
	f.String("llm-api-key", "", "API key for the model provider (or set STUDYHALL_LLM_API_KEY)")
	f.String("text-model", "gpt-4o-mini", "Model for text-only requests")
	f.String("vision-model", "gpt-4o", "Model for requests with images")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("STUDYHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("studyhall")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/studyhall")
	v.AddConfigPath("/etc/studyhall")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app is the opened service plus whatever must be released on exit.
type app struct {
	svc     *study.Service
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close", "error", err)
		}
	}
}

func openApp(ctx context.Context, v *viper.Viper) (*app, error) {
	a := &app{}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db)

	lib, err := library.Open(ctx, db)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	blobs, err := storage.NewFSStore(v.GetString("blob-dir"))
	if err != nil {
		a.Close()
		return nil, err
	}

	client, err := llm.New(ctx, llm.Config{
		Provider:    strings.ToLower(v.GetString("llm-provider")),
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-api-key"),
		TextModel:   v.GetString("text-model"),
		VisionModel: v.GetString("vision-model"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if c, ok := client.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	if v.GetString("llm-api-key") == "" {
		slog.Warn("no LLM API key configured; model calls will fail until STUDYHALL_LLM_API_KEY is set")
	}

	a.svc = study.New(study.Deps{
		Normalizer: ingest.NewNormalizer(),
		Library:    lib,
		Sessions:   db,
		Catalog:    db,
		Blobs:      blobs,
		Client:     client,
	})
	return a, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	r := handler.Router(a.svc, handler.Options{
		CORSOrigins: v.GetStringSlice("cors-origins"),
		Timeout:     v.GetDuration("request-timeout"),
	})
	server := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("starting server",
		"addr", server.Addr,
		"provider", v.GetString("llm-provider"),
		"text_model", v.GetString("text-model"),
		"vision_model", v.GetString("vision-model"),
		"lang", lang,
		"db", v.GetString("db"),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
