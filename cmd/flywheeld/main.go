package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/flywheel-fi/flywheel/adapters/events"
	"github.com/flywheel-fi/flywheel/adapters/flywheel"
	"github.com/flywheel-fi/flywheel/adapters/launch"
	"github.com/flywheel-fi/flywheel/adapters/ledger"
	"github.com/flywheel-fi/flywheel/adapters/store"
	"github.com/flywheel-fi/flywheel/adapters/tokenizer"
	"github.com/flywheel-fi/flywheel/config"
	"github.com/flywheel-fi/flywheel/ports"
	"github.com/flywheel-fi/flywheel/service"
	transport "github.com/flywheel-fi/flywheel/transport/http"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.General)

	if cfg.Solana.TreasuryAddress == "" {
		log.Fatal().Msg("solana.treasury_address is required")
	}

	// Session signing key. Generated per process, so sessions do not
	// survive a restart; wallets re-authenticate with a fresh challenge.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate session signing key")
	}

	solanaLedger := ledger.NewSolanaLedger(cfg.Solana.RPCEndpoint)
	verifier := ledger.NewVerifierMux(solanaLedger, ledger.NewEVMVerifier())

	var (
		challenges      ports.ChallengeStore
		activationStore ports.ActivationStore
		limiter         ports.RateLimiter
		sweeper         service.ChallengeSweeper
		deposits        *ledger.DepositVault
		eventPub        ports.EventPublisher = events.NopPublisher{}
	)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse Redis URL")
		}
		redisClient := redis.NewClient(opts)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Redis publisher")
		}

		challenges = store.NewRedisChallengeStore(redisClient)
		activationStore = store.NewRedisActivationStore(redisClient)
		limiter = store.NewRedisRateLimiter(redisClient)
		deposits = ledger.NewDepositVault(store.NewRedisKeyStore(redisClient))
		eventPub = events.NewWatermillPublisher(publisher)
	} else {
		log.Warn().Msg("no Redis URL configured, using in-memory stores")
		memChallenges := store.NewMemoryChallengeStore()
		challenges = memChallenges
		sweeper = memChallenges
		activationStore = store.NewMemoryActivationStore()
		limiter = store.NewMemoryRateLimiter()
		deposits = ledger.NewDepositVault(nil)
	}

	var launcher ports.Launcher
	if cfg.Solana.OpsWalletKey != "" {
		wallet, err := solana.PrivateKeyFromBase58(cfg.Solana.OpsWalletKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse ops wallet key")
		}
		launcher = launch.NewPumpLauncher(rpc.New(cfg.Solana.RPCEndpoint), solanaLedger, wallet)
	} else {
		log.Warn().Msg("no ops wallet key configured, activations will fail at execution")
		launcher = launch.NewStubLauncher(launch.StubOutcome{Err: errors.New("launcher not configured")})
	}

	launchCost, err := decimal.NewFromString(cfg.Activations.LaunchCostSOL)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.Activations.LaunchCostSOL).Msg("invalid launch cost")
	}

	authService := service.NewAuthService(
		challenges,
		verifier,
		limiter,
		eventPub,
		flywheel.NewController(),
		tokenizer.NewJWTTokenizer(signKey),
		service.WithChallengeTTL(cfg.Auth.ChallengeTTL()),
		service.WithAccessTTL(cfg.Auth.AccessTTL()),
		service.WithRateLimit(cfg.Auth.RateLimit, cfg.Auth.RateLimitWindow()),
	)

	registry := service.NewActivationService(
		activationStore,
		eventPub,
		deposits,
		service.WithActivationTTL(cfg.Activations.TTL()),
		service.WithRetryBackoff(cfg.Activations.RetryBackoff()),
		service.WithMaxAttempts(cfg.Activations.MaxAttempts),
		service.WithLaunchCost(launchCost),
	)

	executor := service.NewExecutor(registry, launcher, solanaLedger)
	watcher := service.NewWatcher(registry, solanaLedger, executor, sweeper, cfg.Activations.SweepInterval(),
		service.WithExecutionLease(cfg.Activations.ExecutionLease()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go executor.Run(ctx)
	go watcher.Run(ctx)

	handlers := transport.NewHandlers(authService, registry, solanaLedger, cfg.Solana.TreasuryAddress)
	router := transport.SetupRouter(handlers)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Logger()
	}
}
