package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quizlive/quizlive/internal/events"
	"github.com/quizlive/quizlive/internal/game"
	"github.com/quizlive/quizlive/internal/gateway"
	"github.com/quizlive/quizlive/internal/quiz"
	"github.com/quizlive/quizlive/internal/results"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer database.Close()

	pool, err := setupPool(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up connection pool")
	}
	defer pool.Close()

	var publisher game.LifecyclePublisher
	if url := os.Getenv("NATS_URL"); url != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = url
		js, err := events.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up JetStream publisher")
		}
		defer js.Close()
		publisher = js
	}

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	engine := game.NewEngine(
		manager,
		quiz.NewRepository(database),
		results.NewRepository(pool),
		publisher,
		clockwork.NewRealClock(),
		gameConfig(),
	)
	manager.SetDispatcher(gateway.NewDispatcher(engine))

	server := setupServer(gateway.NewWebSocketHandler(manager))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Start(ctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Optional sweep for sessions whose host never came back. Disabled unless
	// GAME_ABANDON_AFTER is set to a positive duration.
	if maxAge := getEnvAsDuration("GAME_ABANDON_AFTER", 0); maxAge > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(maxAge / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if n := engine.Registry().SweepAbandoned(maxAge); n > 0 {
						log.Info().Int("removed", n).Msg("swept abandoned sessions")
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}
