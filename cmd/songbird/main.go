// Package main provides the Songbird player daemon entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"songbird/internal/catalog"
	"songbird/internal/core"
	httpserver "songbird/internal/http"
	"songbird/internal/llm"
	"songbird/internal/lyrics"
	"songbird/internal/mediasession"
	"songbird/internal/player"
	"songbird/internal/playlist"
	"songbird/internal/resolver"
	"songbird/internal/sink"
	"songbird/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "songbird",
	Short: "Songbird - headless music player with on-demand stream resolution",
	Long: `Songbird is a headless music player daemon. It searches an external track
catalog, resolves full-quality streams on demand from a pool of providers,
and plays them through MPD, degrading to catalog previews when resolution
fails.`,
	RunE: runSongbird,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("catalog-client-id", "", "catalog API client ID")
	rootCmd.PersistentFlags().String("catalog-client-secret", "", "catalog API client secret")
	rootCmd.PersistentFlags().String("catalog-trending-playlist", "", "playlist ID backing the trending listing")
	rootCmd.PersistentFlags().String("llm-provider", "none", "LLM provider (openai, anthropic, ollama, none)")
	rootCmd.PersistentFlags().String("llm-model", "", "LLM model name")
	rootCmd.PersistentFlags().String("llm-api-key", "", "LLM API key")
	rootCmd.PersistentFlags().String("mpd-host", "localhost", "MPD host")
	rootCmd.PersistentFlags().Int("mpd-port", 6600, "MPD port")
	rootCmd.PersistentFlags().String("mpd-password", "", "MPD password")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().Bool("media-session", true, "publish playback on the desktop media session")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("SONGBIRD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Catalog.ClientID = viper.GetString("catalog-client-id")
	cfg.Catalog.ClientSecret = viper.GetString("catalog-client-secret")
	cfg.Catalog.TrendingPlaylist = viper.GetString("catalog-trending-playlist")

	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.APIKey = viper.GetString("llm-api-key")
	cfg.LLM.BaseURL = viper.GetString("llm-base-url")

	cfg.Sink.Host = viper.GetString("mpd-host")
	cfg.Sink.Port = viper.GetInt("mpd-port")
	cfg.Sink.Password = viper.GetString("mpd-password")

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	cfg.Server.Port = viper.GetInt("server-port")

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runSongbird(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting Songbird",
		zap.String("llm_provider", config.LLM.Provider),
		zap.String("mpd", fmt.Sprintf("%s:%d", config.Sink.Host, config.Sink.Port)))

	catalogClient := catalog.NewClient(ctx, &config.Catalog, logger.Named("catalog"))

	pool := resolver.NewPool(&config.Resolver, logger.Named("resolver"))
	streamResolver := resolver.New(&config.Resolver, pool, logger.Named("resolver"))

	urlCache := store.NewURLCache(config.App.ResolvedCache, 0.001)

	audioSink, err := sink.NewSink(&config.Sink, config.App.ProgressPeriod, logger.Named("sink"))
	if err != nil {
		return fmt.Errorf("failed to connect audio sink: %w", err)
	}
	defer func() {
		if err := audioSink.Close(); err != nil {
			logger.Warn("Failed to close audio sink", zap.Error(err))
		}
	}()

	recommender, err := llm.NewProvider(&config.LLM, logger.Named("llm"))
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	lyricsClient := lyrics.NewClient(&config.Lyrics, logger.Named("lyrics"))
	generator := playlist.NewGenerator(catalogClient, recommender, logger.Named("playlist"))

	httpServer := httpserver.NewServer(
		&config.Server,
		nil, // bound below once the controller exists
		catalogClient,
		lyricsClient,
		generator,
		logger.Named("http"),
	)

	controller := player.NewController(
		&config.App,
		audioSink,
		streamResolver,
		urlCache,
		httpServer,
		logger.Named("player"),
	)
	httpServer.BindPlayer(controller)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return controller.Run(gCtx)
	})

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	if viper.GetBool("media-session") {
		transport, err := mediasession.NewMPRISTransport(logger.Named("mediasession"))
		if err != nil {
			logger.Warn("Media session unavailable, continuing without it", zap.Error(err))
		} else {
			bridge := mediasession.NewBridge(transport, controller, controller.Subscribe(), logger.Named("mediasession"))
			g.Go(func() error {
				return bridge.Run(gCtx)
			})
		}
	}

	logger.Info("Songbird started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Songbird stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Songbird stopped gracefully")
	return nil
}
