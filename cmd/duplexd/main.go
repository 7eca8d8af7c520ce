// Command duplexd is the CLI bootstrap for the dual-protocol server
// core: load configuration, register example routes, run the event
// loop until SIGINT/SIGTERM, then shut down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/duplexsock/duplexsock/config"
	"github.com/duplexsock/duplexsock/logging"
	"github.com/duplexsock/duplexsock/server"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		host       string
		port       int
		debug      bool
		queueFile  string
		authKey    string
		healthPath string
	)

	cmd := &cobra.Command{
		Use:   "duplexd",
		Short: "Run the dual-protocol TCP/HTTP/WebSocket server core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debug
			}
			if cmd.Flags().Changed("queue-file") {
				cfg.QueueFile = queueFile
			}
			if cmd.Flags().Changed("auth-key") {
				cfg.AuthKey = authKey
			}
			if cmd.Flags().Changed("health-check-path") {
				cfg.HealthCheckPath = healthPath
			}

			log := logging.New(os.Stderr, cfg.Debug)
			srv := server.New(cfg, log)
			registerExampleRoutes(srv)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("addr", cfg.Addr()).Msg("duplexd: starting")
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.StringVar(&host, "host", "", "listen host (overrides config)")
	flags.IntVar(&port, "port", 0, "listen port (overrides config)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging (overrides config)")
	flags.StringVar(&queueFile, "queue-file", "", "path to the newline-delimited JSON queue file (overrides config)")
	flags.StringVar(&authKey, "auth-key", "", "required auth_key query parameter for WS handshakes (overrides config)")
	flags.StringVar(&healthPath, "health-check-path", "", "HTTP path intercepted as the health endpoint (overrides config)")

	return cmd
}

// registerExampleRoutes wires a minimal echo event, so a freshly built
// binary is immediately exercisable.
func registerExampleRoutes(srv *server.Server) {
	srv.Router.OnEvent("echo", func(clientID string, data json.RawMessage) (any, error) {
		return nil, srv.Send(clientID, "echo.reply", data)
	})
}
