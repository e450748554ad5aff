package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/akshitbansal010/warehouse-compliance-system/api"
	"github.com/akshitbansal010/warehouse-compliance-system/auth"
	"github.com/akshitbansal010/warehouse-compliance-system/config"
	"github.com/akshitbansal010/warehouse-compliance-system/domain"
	"github.com/akshitbansal010/warehouse-compliance-system/hub"
	"github.com/akshitbansal010/warehouse-compliance-system/protocol"
	"github.com/akshitbansal010/warehouse-compliance-system/sweep"
	ws "github.com/akshitbansal010/warehouse-compliance-system/websocket"
)

func main() {
	var configName string

	rootCmd := &cobra.Command{
		Use:           "warehouse-broker",
		Short:         "Real-time notification broker for warehouse operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configName, "config", "c", "config", "config file name without extension")

	rootCmd.AddCommand(serveCmd(&configName), tokenCmd(&configName))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd(configName *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket broker and management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(slog.Default(), *configName)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Log.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func tokenCmd(configName *string) *cobra.Command {
	var (
		userID   int64
		role     string
		username string
		email    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(slog.Default(), *configName)
			if err != nil {
				return err
			}
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			issuer := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			tok, err := issuer.Issue(domain.Principal{
				Identity: domain.Identity{Role: r, UserID: userID},
				Username: username,
				Email:    email,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "numeric user id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleWorker), "admin, supervisor or worker")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.MarkFlagRequired("user-id")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authenticator := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	broker := hub.New(hub.WithLogger(logger), hub.WithRegisterer(reg))
	handler := protocol.NewHandler(broker, authenticator, protocol.WithLogger(logger), protocol.WithRegisterer(reg))
	wsServer := ws.NewServer(handler, ws.Config{
		WriteWait:      cfg.Transport.WriteWait,
		PongWait:       cfg.Transport.PongWait,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
		SendBuffer:     cfg.Transport.SendBuffer,
	}, cfg.Transport.AllowedOrigins, logger)

	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/stats", statsHandler(broker))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Route("/ws", func(r chi.Router) {
		r.Get("/connect", wsServer.ServeHTTP)
		api.New(broker, authenticator, logger).Mount(r)
	})

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweep.New(broker, cfg.Liveness.Schedule, cfg.Liveness.Timeout, logger).Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		broker.CloseAll()
		wsServer.Wait()
		return err
	})

	return g.Wait()
}

func setupLogger(levelName string) *slog.Logger {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(broker *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(broker.Stats())
	}
}
