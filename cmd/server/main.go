package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/app"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/auth"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	addr       string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "server",
		Short:         "GreenTech marketplace chat and presence relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "HTTP listen address override")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the WebSocket relay",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := loadConfig(opts)
				if err != nil {
					return err
				}
				st, err := app.OpenStore(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer st.Close()
				logger.Info().Str("driver", cfg.Database.Driver).Msg("schema applied")
				return nil
			},
		},
		newUserCmd(opts),
		newTokenCmd(opts),
	)

	return root
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage chat participants",
	}
	user.AddCommand(&cobra.Command{
		Use:   "create <username>",
		Short: "Create a user and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			u, err := st.CreateUser(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	})
	return user
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		ttl      time.Duration
		username string
	)
	cmd := &cobra.Command{
		Use:   "token <user_id>",
		Short: "Mint a development token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			token, err := auth.GenerateToken(auth.NewJWTConfig(cfg.JWT, ttl), userID, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&username, "username", "", "username claim")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting relay server")
	if err := application.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func loadConfig(opts *rootOptions) (config.Config, *zerolog.Logger, error) {
	bootLevel := opts.logLevel
	if bootLevel == "" {
		bootLevel = "info"
	}
	bootLogger := log.New(bootLevel)

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return cfg, bootLogger, fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(config.Config{Addr: opts.addr, LogLevel: opts.logLevel})
	if err := cfg.Validate(); err != nil {
		return cfg, bootLogger, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}
