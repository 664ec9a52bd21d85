package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arift/DJ-Pasha/meta"
	"github.com/arift/DJ-Pasha/player"
	"github.com/arift/DJ-Pasha/youtube"
)

var rootCmd = &cobra.Command{
	Use:          "dj-pasha",
	Short:        "DJ Pasha queues and plays YouTube audio in a Discord voice channel",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("app-id", "", "discord application id")
	flags.String("guild-id", "", "discord guild (server) id")
	flags.String("token", "", "discord bot token")
	flags.String("cache-dir", "cache", "directory for downloaded songs")
	flags.String("db-url", "", "sqlite://<path> or postgres://... (defaults to sqlite inside the cache dir)")
	flags.String("cookie", "", "youtube cookie header, for age-gated videos")
	flags.String("http-addr", ":3000", "listen address for the status API")
	flags.Bool("debug", false, "verbose logging")

	viper.BindPFlags(flags)
	viper.SetEnvPrefix("dj_pasha")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	appID := viper.GetString("app-id")
	guildID := viper.GetString("guild-id")
	token := viper.GetString("token")
	if appID == "" || guildID == "" || token == "" {
		return fmt.Errorf("app-id, guild-id and token are all required")
	}

	cacheDir := viper.GetString("cache-dir")
	cache, err := meta.NewCache(cacheDir)
	if err != nil {
		return err
	}

	repo, err := openRepository(viper.GetString("db-url"), cacheDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	pool := meta.NewWorkerPool(0)
	defer pool.Shutdown()

	yt := youtube.NewClient(viper.GetString("cookie"))
	engine := meta.NewEngine(cache, repo, yt, pool)
	registry := player.NewMemoryRegistry()

	bot, err := NewBot(BotConfig{
		AppID:    appID,
		GuildID:  guildID,
		Token:    token,
		Engine:   engine,
		Registry: registry,
	})
	if err != nil {
		return err
	}
	defer bot.Close()

	router := NewHTTPRouter(engine, registry)
	go func() {
		addr := viper.GetString("http-addr")
		if err := router.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("status API stopped", "err", err)
		}
	}()

	log.Info("DJ Pasha is ready")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	if p, ok := registry.Any(); ok {
		p.Terminate()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return router.Shutdown(ctx)
}

func openRepository(dbURL, cacheDir string) (meta.Repository, error) {
	if dbURL == "" {
		dbURL = "sqlite://" + filepath.Join(cacheDir, "dj-pasha.db")
	}
	log.Info("opening database", "url", dbURL)
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parsing db url: %w", err)
	}
	switch u.Scheme {
	case "sqlite":
		return meta.NewSQLiteRepository(strings.TrimPrefix(dbURL, "sqlite://"))
	case "postgres":
		return meta.NewPostgresRepository(dbURL)
	}
	return nil, fmt.Errorf("unsupported database scheme %q", u.Scheme)
}
