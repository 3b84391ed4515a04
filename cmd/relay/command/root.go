package command

// root.go defines the root command: connect to the monitor and relay every
// action it sends back over the same session.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/1dr0z/elm-redux-devtools/internal/config"
	"github.com/1dr0z/elm-redux-devtools/internal/relay"
	"github.com/1dr0z/elm-redux-devtools/internal/remotedev"
	"github.com/1dr0z/elm-redux-devtools/internal/status"
)

var (
	host       string // monitor hostname
	port       int    // monitor port
	secure     bool   // use wss
	name       string // instance name shown in the monitor
	pretty     bool   // coloured console echo of inbound messages
	statusAddr string // status server address, disabled when empty
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "relay - Redux DevTools remote monitor relay",
	Long: `relay connects to a Redux DevTools remote monitor (remotedev-server) and
sends every action dispatched from the monitor back over the same session.

Settings are read from the environment (or a .env file) and can be overridden with flags.`,
	SilenceUsage: true,
	RunE:         runRelay,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&host, "host", "localhost", "monitor hostname")
	flags.IntVarP(&port, "port", "p", 8000, "monitor port")
	flags.BoolVar(&secure, "secure", false, "connect with wss")
	flags.StringVar(&name, "name", "", "instance name shown in the monitor")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "json", "log format (text, json)")

	rootCmd.Flags().BoolVar(&pretty, "pretty", false, "print a coloured line per inbound message")
	rootCmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve /check-conn and /stats on this address")
}

// loadConfig reads the environment then applies the flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Hostname = host
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("secure") {
		cfg.Secure = secure
	}
	if flags.Changed("name") {
		cfg.InstanceName = name
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = statusAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func dial(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*remotedev.Conn, error) {
	logger.Info("connecting_to_monitor", "url", cfg.SocketURL())
	return remotedev.Dial(ctx, remotedev.Options{
		URL:              cfg.SocketURL(),
		Name:             cfg.InstanceName,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteWait:        cfg.WriteWait,
		PongWait:         cfg.PongWait,
		Logger:           logger,
	})
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := []relay.Option{relay.WithLogger(logger)}
	if pretty {
		opts = append(opts, relay.WithConsole(relay.NewConsole(os.Stdout)))
	}
	r := relay.New(conn, opts...)

	if cfg.StatusAddr != "" {
		if !cfg.IsDevelopment() {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := status.NewServer(cfg.StatusAddr, conn.InstanceID(), r, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status_server_error", "error", err.Error())
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := r.Run(ctx); err != nil {
		return err
	}
	logger.Info("received_shutdown_signal")
	return nil
}
