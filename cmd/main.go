package main

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	glog "github.com/labstack/gommon/log"

	"cardforge/pkg/server"
	"cardforge/pkg/settings"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "cardforge",
	})
	debug, _ := strconv.ParseBool(os.Getenv("CARDFORGE_DEBUG"))
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	store := settings.NewStore(cmp.Or(os.Getenv("CARDFORGE_SETTINGS"), "settings.json"))
	store.SetOverlay(settings.Env(os.Getenv).Apply)
	if st, err := store.Load(); err != nil {
		logger.Warn("settings unreadable, sessions will fail until fixed", "path", store.Path(), "error", err)
	} else {
		cfg := st.Config()
		logger.Info("settings loaded", "path", store.Path(), "provider", cfg.Provider, "model", cfg.Model)
		if err := cfg.Validate(); err != nil {
			logger.Warn("active provider is not usable, model stages are disabled", "error", err)
		}
	}

	srv := server.NewServer(ctx, store, logger)
	if debug {
		srv.Echo.Logger.SetLevel(glog.DEBUG)
	}

	addr := ":" + cmp.Or(os.Getenv("PORT"), "8080")

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
		done()
		close(finishedShutDown)
	}()

	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		done()
	}
	<-finishedShutDown
}
