package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/romanzh1/english-tutor/internal/handler"
	"github.com/romanzh1/english-tutor/internal/llm"
	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/internal/parser"
	"github.com/romanzh1/english-tutor/internal/repository"
	"github.com/romanzh1/english-tutor/internal/service"
	"github.com/romanzh1/english-tutor/pkg/config"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	configPath, _ := fs.GetString("config")
	cfg, err := config.LoadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.S().Debug("logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fs); err != nil {
		zap.S().Errorw("english tutor stopped", zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = lvl
	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	return zapConfig.Build()
}

func run(ctx context.Context, cfg *config.Config, fs *pflag.FlagSet) error {
	repo, err := repository.NewDB(repository.Config{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		OpTimeout:    cfg.Database.OpTimeout,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("open store (driver: %s): %w", cfg.Database.Driver, err)
	}
	defer repo.Close()

	if err = repo.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	client := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})

	svc := service.NewService(repo, client, parser.New())
	console := handler.NewConsoleHandler(os.Stdin, os.Stdout, svc, handler.Options{
		ErrorDays:   cfg.Report.ErrorDays,
		ErrorLimit:  cfg.Report.ErrorLimit,
		PatternDays: cfg.Report.PatternDays,
		ExportDir:   cfg.Export.Dir,
	})

	if mode(fs, "reset-db") {
		if err = repo.Reset(); err != nil {
			return err
		}
		if err = repo.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return checkStore(ctx, svc)
	}

	if mode(fs, "check-db") {
		return checkStore(ctx, svc)
	}

	level := models.Level(cfg.User.Level)

	if mode(fs, "stats") || mode(fs, "errors") || mode(fs, "patterns") || mode(fs, "export") {
		user, err := svc.ResolveUser(ctx, cfg.User.Name, level)
		if err != nil {
			return err
		}

		switch {
		case mode(fs, "stats"):
			return console.ShowStatistics(ctx, user.UserID)
		case mode(fs, "errors"):
			return console.ShowErrors(ctx, user.UserID, cfg.Report.ErrorDays, cfg.Report.ErrorLimit)
		case mode(fs, "patterns"):
			return console.ShowPatterns(ctx, user.UserID, cfg.Report.PatternDays)
		default:
			return console.Export(ctx, user.UserID, user.Username)
		}
	}

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key: set DEEPSEEK_API_KEY, OPENAI_API_KEY or TUTOR_LLM_API_KEY")
	}

	session, err := svc.StartSession(ctx, cfg.User.Name, level, cfg.Session.Topic)
	if err != nil {
		return err
	}

	err = console.Start(ctx, session)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func mode(fs *pflag.FlagSet, name string) bool {
	on, _ := fs.GetBool(name)
	return on
}

func checkStore(ctx context.Context, svc *service.Service) error {
	counts, err := svc.CheckStore(ctx)
	if err != nil {
		return fmt.Errorf("check store: %w", err)
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Println("Database OK")
	for _, name := range names {
		fmt.Printf("  %-18s %d rows\n", name, counts[name])
	}
	return nil
}
