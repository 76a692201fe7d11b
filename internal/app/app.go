package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/syncroom/server/internal/controller"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/repository/connection/inmemory"
	sendws "github.com/syncroom/server/internal/repository/sender/ws"
	sourceredis "github.com/syncroom/server/internal/repository/sourcecache/redis"
	"github.com/syncroom/server/internal/service/content"
	"github.com/syncroom/server/internal/service/room"
	"github.com/syncroom/server/internal/service/sponsor"
	"github.com/syncroom/server/pkg/ctxlogger"
	"github.com/syncroom/server/pkg/redisclient"
)

type AppConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	LogLevel           string        `json:"log_level"`
	MembersLimit       int           `json:"members_limit"`
	QueueLimit         int           `json:"queue_limit"`
	RedisHost          string        `json:"redis_host"`
	RedisPort          int           `json:"redis_port"`
	RedisPassword      string        `json:"-"`
	SponsorAPIURL      string        `json:"sponsor_api_url"`
	EmptyRoomTTL       time.Duration `json:"empty_room_ttl"`
	TimeRequestTimeout time.Duration `json:"time_request_timeout"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	if cfg.EmptyRoomTTL <= 0 {
		return fmt.Errorf("empty room ttl must be positive")
	}
	return nil
}

const sourceCacheTTL = 6 * time.Hour

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	httpClient := &http.Client{Timeout: 10 * time.Second}

	sourceCache := sourceredis.NewRepo(rc, sourceCacheTTL)
	resolver := content.NewResolver(sourceCache, httpClient, logger)
	segments := sponsor.NewProvider(cfg.SponsorAPIURL, httpClient, logger)
	sender := sendws.NewRepo(logger)
	connectionRepo := inmemory.NewRepo()

	roomService := room.NewService(sender, resolver, segments, connectionRepo, &room.Config{
		MembersLimit:       cfg.MembersLimit,
		QueueLimit:         cfg.QueueLimit,
		DefaultPermission:  domain.DefaultMemberPermission,
		SegmentCategories:  sponsor.AllCategories,
		BlockedCategories:  []string{"sponsor"},
		TimeRequestTimeout: cfg.TimeRequestTimeout,
		EmptyRoomTTL:       cfg.EmptyRoomTTL,
		CleanupInterval:    time.Minute,
	}, logger)

	controller := controller.NewController(roomService, connectionRepo, sender, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
