package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/config"
	"github.com/ariebrainware/hospital-dashboard/endpoint"
	"github.com/ariebrainware/hospital-dashboard/middleware"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hospital-dashboard",
		Short:        "Hospital operations dashboard API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default doctors and an empty bed roster for every ward",
		RunE: func(cmd *cobra.Command, args []string) error {
			perWard, _ := cmd.Flags().GetInt("beds-per-ward")
			if perWard < 0 {
				return fmt.Errorf("beds-per-ward must not be negative")
			}
			db, err := openDatabase()
			if err != nil {
				return err
			}
			doctors, err := model.SeedDoctors(db)
			if err != nil {
				return err
			}
			wards := config.LoadConfig().Wards
			beds, err := model.SeedBeds(db, wards, perWard)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d doctors and %d beds in %d wards\n",
				doctors, beds, len(wards))
			return nil
		},
	}
	cmd.Flags().Int("beds-per-ward", 4, "Beds to create in each configured ward")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <staff-id>",
		Short: "Mint a staff bearer token for the dashboard API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			util.SetJWTSecret(config.LoadConfig().JWTSecret)
			token, err := util.CreateStaffToken(args[0], name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Display name carried in the token")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func openDatabase() (*gorm.DB, error) {
	db, err := config.ConnectMySQL()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := model.Migrate(db); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

func runServer(ctx context.Context) error {
	cfg := config.LoadConfig()
	util.InitLogger(cfg.AppName, cfg.AppEnv, cfg.LogLevel)

	if cfg.JWTSecret == "" {
		return util.ErrMissingSecret
	}
	util.SetJWTSecret(cfg.JWTSecret)

	db, err := openDatabase()
	if err != nil {
		return err
	}
	util.SetActivityLoggerDB(db)
	util.InitViewCache(cfg.StatsCacheTTL)

	rdb, err := config.ConnectRedis()
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, refresh events stay in this process")
	}
	b := bus.New(rdb)
	go func() {
		if err := b.Run(ctx); err != nil {
			log.Error().Err(err).Msg("refresh relay stopped")
		}
	}()

	gin.SetMode(cfg.GinMode)
	router := endpoint.NewRouter(endpoint.RouterOptions{
		AppName: cfg.AppName,
		DB:      db,
		Bus:     b,
		RateLimit: middleware.RateLimitConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateWindow,
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the server context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
