package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quotapace/quotapace/internal/bootstrap"
	"github.com/quotapace/quotapace/internal/config"
	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/schedule"
	"github.com/quotapace/quotapace/internal/server"
	"github.com/quotapace/quotapace/internal/sink"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the refresh scheduler and the local status API",
	Long: `Run the long-lived quotapace service. It refreshes usage on a timer,
serves the latest pacing report on /v1/usage and pushes updates to
WebSocket subscribers on /v1/stream.`,
	RunE: func(c *cobra.Command, args []string) error {
		log.SetupBaseLogger()

		result, err := bootstrap.Bootstrap(cfgFile)
		if err != nil {
			return err
		}
		holder := result.Config
		cfg := holder.Get()

		if servePort != 0 {
			cfg.Port = servePort
		}
		if err := log.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
			return err
		}

		engine := bootstrap.BuildEngine(holder)
		hub := server.NewHub()
		sinks := sink.Multi{sink.LogSink{}, hub}

		sched := schedule.New(engine.Orchestrator, sinks, cfg.RefreshInterval())
		sched.OnUnauthorized = func() {
			engine.Session.Invalidate()
			log.Errorf("github credential rejected; run `quotapace login` to re-authenticate")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched.Start(ctx)
		defer sched.Stop()

		watcher, err := config.NewWatcher(result.ConfigFilePath, func(next *config.Config) {
			prev := holder.Get()
			holder.Set(next)
			engine.Orchestrator.InvalidateCache()
			if next.RefreshInterval() != prev.RefreshInterval() {
				sched.SetInterval(next.RefreshInterval())
			} else if !sched.Trigger(true) {
				// Cache is already invalidated, so the in-flight or next
				// scheduled cycle picks the new config up.
				log.Debugf("config change refresh coalesced into the running cycle")
			}
		})
		if err != nil {
			log.WithError(err).Warn("config watching disabled")
		} else {
			defer watcher.Close()
		}

		srv := server.New(cfg.Port, engine.Orchestrator, sched, hub)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		return srv.Run()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
