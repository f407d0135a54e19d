// Package cli provides the command-line entry point for the epaperpub
// aggregation service: configuration loading, dependency wiring, route
// registration and graceful shutdown.
package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/silberengel/epaperpub/cache"
	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/config"
	epaperhttp "github.com/silberengel/epaperpub/http"
	"github.com/silberengel/epaperpub/network"
	"github.com/silberengel/epaperpub/orchestrator"
	"github.com/silberengel/epaperpub/relay"
)

// cfgFile holds the path to an optional configuration file specified via
// --config. When empty, initConfig searches the usual locations.
var cfgFile string

// RootCmd is the epaperpub entry point: a single long-running HTTP server,
// no subcommands.
var RootCmd = &cobra.Command{
	Use:   "epaperpub",
	Short: "aggregates Nostr publications, articles and highlights into readable, downloadable documents",
	Long: `epaperpub aggregates long-form publications, articles and highlights
from Nostr relays, resolves their hierarchy and embedded media, and serves
them over HTTP for reading in-browser or rendering to e-reader formats via
a companion renderer service.`,
	RunE: runServer,
}

const envPrefix = "EPAPERPUB"

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.epaperpub.yaml, ./.epaperpub.yaml)")

	RootCmd.PersistentFlags().Int("port", 0, "HTTP listen port")
	RootCmd.PersistentFlags().String("renderer-url", "", "renderer service base URL")
	RootCmd.PersistentFlags().StringSlice("relays", nil, "comma-separated relay URLs")
	RootCmd.PersistentFlags().Float64("rate-limit", 0, "requests per second per client (0 = no limit)")

	viper.BindPFlag("port", RootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("renderer_url", RootCmd.PersistentFlags().Lookup("renderer-url"))
	viper.BindPFlag("relays", RootCmd.PersistentFlags().Lookup("relays"))
	viper.BindPFlag("rate_limit", RootCmd.PersistentFlags().Lookup("rate-limit"))
}

// initConfig wires Viper's config-file and environment-variable sources.
// Command-line flags take precedence, then environment variables prefixed
// with EPAPERPUB_, then the config file, then the built-in defaults loaded
// by the config package itself.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".epaperpub")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		common.Logger.WithField("file", viper.ConfigFileUsed()).Info("loaded config file")
	}
}

// runServer loads configuration, wires every collaborator and blocks until
// an interrupt or termination signal triggers a graceful shutdown.
func runServer(cmd *cobra.Command, args []string) error {
	loader := config.NewConfigLoader(envPrefix)
	cfg, err := loader.LoadAll()
	if err != nil {
		return err
	}

	if level, parseErr := logrus.ParseLevel(cfg.Service.LogLevel); parseErr == nil {
		common.Logger.SetLevel(level)
	}
	if cfg.Service.LogFormat == "json" {
		common.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if port := viper.GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if rendererURL := viper.GetString("renderer_url"); rendererURL != "" {
		cfg.Renderer.BaseURL = rendererURL
	}
	if relays := viper.GetStringSlice("relays"); len(relays) > 0 {
		cfg.Relay.URLs = relays
	}
	rateLimit := viper.GetFloat64("rate_limit")

	store := cache.New(
		cache.WithTTL(cache.NsListPublications, cfg.Cache.ListTTL),
		cache.WithTTL(cache.NsListArticles, cfg.Cache.ListTTL),
		cache.WithTTL(cache.NsListHighlights, cfg.Cache.ListTTL),
		cache.WithTTL(cache.NsDetailPublication, cfg.Cache.DetailTTL),
		cache.WithTTL(cache.NsDetailArticle, cfg.Cache.DetailTTL),
		cache.WithTTL(cache.NsComments, cfg.Cache.CommentsTTL),
		cache.WithTTL(cache.NsMediaImage, cfg.Cache.MediaTTL),
		cache.WithTTL(cache.NsDerivedFile, cfg.Cache.MediaTTL),
	)

	pool := relay.NewPool()
	pool.DialTimeout = cfg.Relay.ConnectTimeout
	defer pool.ClosePool()
	httpClient := network.NewClient(cfg.Renderer.RequestTimeout)
	rendererClient := epaperhttp.NewRendererClient(cfg.Renderer.BaseURL)
	svc := orchestrator.New(store, pool, cfg.Relay)

	serverCfg := epaperhttp.DefaultServerConfig()
	serverCfg.Port = cfg.Server.Port
	serverCfg.Debug = cfg.Server.Debug
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverCfg.AllowedOrigins = cfg.CORS.AllowedOrigins
	serverCfg.RateLimit = rateLimit

	e := epaperhttp.NewEchoServer(serverCfg)
	epaperhttp.RegisterRoutes(e, epaperhttp.Deps{
		Orchestrator: svc,
		Renderer:     rendererClient,
		HTTPClient:   httpClient,
		Pool:         pool,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := epaperhttp.StartServer(e, serverCfg); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	common.Logger.Info("shutting down")
	return epaperhttp.GracefulShutdown(e, serverCfg.ShutdownTimeout)
}
