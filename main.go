package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/quizarena/config"
	"github.com/wfunc/quizarena/events"
	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/monitor"
	"github.com/wfunc/quizarena/persistence"
	"github.com/wfunc/quizarena/ranking"
	"github.com/wfunc/quizarena/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "quizarena",
		Short:         "Live and asynchronous trivia challenge server.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory containing config.yaml (env: QUIZARENA_*)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	var bank string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML question bank into postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			if bank == "" {
				bank = cfg.Database.QuestionBank
			}
			return seedQuestions(cmd.Context(), cfg, bank)
		},
	}
	seed.Flags().StringVar(&bank, "file", "", "question bank to load (default database.question_bank)")

	root.AddCommand(serve, seed)
	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func postgresDSN(cfg *config.Config) string {
	pg := cfg.Database.Postgres
	return persistence.PostgresDSN(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
}

// openStores returns the question source and game database for the configured driver.
func openStores(cfg *config.Config) (persistence.QuestionSource, persistence.Database, []io.Closer, error) {
	if !cfg.Postgres() {
		qs, err := persistence.LoadQuestionBank(cfg.Database.QuestionBank)
		if err != nil {
			return nil, nil, nil, err
		}
		mem := persistence.NewMemory(qs)
		logger.Log.Infof("Using in-memory store with %d questions from %s", len(qs), cfg.Database.QuestionBank)
		return mem, mem, []io.Closer{mem}, nil
	}

	dsn := postgresDSN(cfg)
	db, err := persistence.NewGormPostgreSQL(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	questions, err := persistence.NewPostgreSQL(dsn)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("connect to question store: %w", err)
	}
	logger.Log.Info("Database connection successful.")
	return questions, db, []io.Closer{questions, db}, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	defer logger.Sync()

	questions, db, closers, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	deps := server.Deps{
		Questions: questions,
		DB:        db,
		Monitor:   monitor.NewMonitor("quizarena"),
	}

	if cfg.Redis.URL != "" {
		lb, err := ranking.DialRedisLeaderboard(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer lb.Close()
		deps.Leaderboard = lb
		logger.Log.Info("Redis leaderboard enabled.")
	}

	if cfg.AMQP.URL != "" {
		pub, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("connect to amqp: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
		logger.Log.Infof("Publishing events to exchange %s.", cfg.AMQP.Exchange)
	}

	gameServer := server.NewGameServer(cfg, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logger.Log.Infof("Received %s, shutting down", s)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return gameServer.Shutdown(shutdownCtx)
}

func seedQuestions(ctx context.Context, cfg *config.Config, path string) error {
	if !cfg.Postgres() {
		return fmt.Errorf("seed requires database.driver=postgres")
	}
	qs, err := persistence.LoadQuestionBank(path)
	if err != nil {
		return err
	}
	store, err := persistence.NewPostgreSQL(postgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("connect to question store: %w", err)
	}
	defer store.Close()

	n, err := store.SeedQuestions(ctx, qs)
	if err != nil {
		return err
	}
	logger.Log.Infof("Seeded %d of %d questions from %s", n, len(qs), path)
	return nil
}
