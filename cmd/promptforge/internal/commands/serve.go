package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/promptforge/pkg/a2a"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// NewServeCommand starts the a2a agent server.
func NewServeCommand() *cobra.Command {
	var addr string
	var provider string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prompt optimization agent server",
		Long: `Serve the optimizer over the a2a protocol. The server publishes an agent
card at /.well-known/agent.json, accepts message/send, tasks/get and
tasks/cancel over JSON-RPC at /rpc, and streams task updates as
server-sent events at /stream/{taskID}.

Completed runs are recorded in the history store unless history is
disabled in the configuration.`,
		Example: `  # Serve with the built-in defaults on localhost:9999
  promptforge serve

  # Listen on every interface with settings from a config file
  promptforge serve --addr :8080 --config promptforge.yaml

  # Serve with Anthropic as the default provider
  promptforge serve --provider anthropic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prov, err := resolveProvider(cfg, provider)
			if err != nil {
				return err
			}
			if addr != "" {
				host, port, err := splitAddr(addr)
				if err != nil {
					return err
				}
				cfg.Server.Host = host
				cfg.Server.Port = port
			}

			respCache := buildCache(cfg)
			if respCache != nil {
				defer respCache.Close()
			}
			service := buildService(cfg, respCache)
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			var optimizeService a2a.OptimizeService = service
			if store != nil {
				optimizeService = &recordingService{service: service, store: store}
			}
			executor := a2a.NewOptimizerExecutor(optimizeService, a2a.WithDefaultProvider(prov))

			srv, err := a2a.NewServer(executor, a2a.ServerConfig{
				Host:        cfg.Server.Host,
				Port:        cfg.Server.Port,
				Name:        cfg.Server.Name,
				Description: cfg.Server.Description,
				URL:         cfg.Server.URL,
				MaxTaskAge:  cfg.Server.MaxTaskAge.Std(),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address as host:port (overrides config)")
	cmd.Flags().StringVar(&provider, "provider", "", "Default model provider: gemini, openai or anthropic (overrides config)")

	return cmd
}

// splitAddr parses host:port, treating a bare ":port" as every interface.
func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.Wrap(err, errors.InvalidInput,
			fmt.Sprintf("invalid --addr %q: expected host:port", addr))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, errors.New(errors.InvalidInput,
			fmt.Sprintf("invalid port in --addr %q", addr))
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}
