package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/swarmchat/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			srv := server.New(a.orchestrator, func(o *server.Options) {
				o.Addr = a.cfg.Server.Addr
				o.RateLimit = a.cfg.Server.RateLimit
				o.RateBurst = a.cfg.Server.RateBurst
				o.ReadHeaderTimeout = a.cfg.Server.ReadHeaderTimeout
				o.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
				if a.collector != nil {
					o.Metrics = a.collector
					o.Gatherer = a.promRegistry
				}
				o.Logger = a.logger
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}
