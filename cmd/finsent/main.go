package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wizanyx/finsent/config"
	"github.com/wizanyx/finsent/internal/ingest"
	srv "github.com/wizanyx/finsent/internal/server"
	"github.com/wizanyx/finsent/internal/store"
	"github.com/wizanyx/finsent/internal/telemetry"
)

func main() {
	var cfgPath string
	root := &cobra.Command{Use: "finsent", Short: "Financial text sentiment service"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (defaults to ./config.yaml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg)
		},
	}

	var migDir string
	var direction string
	var steps int
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var query string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over the enabled sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()

			var st *store.Store
			if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
				if st, err = store.NewWithDSN(ctx, dsn); err != nil {
					return err
				}
				defer st.Close()
			}

			clf, err := srv.BuildClassifier(cfg, nil)
			if err != nil {
				return err
			}
			svc, err := ingest.New(cfg, clf, st, nil, telemetry.New())
			if err != nil {
				return err
			}
			report, err := svc.RunOnce(ctx, query)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	ingestCmd.Flags().StringVar(&query, "query", "", "search term or ticker (empty = broad market)")

	var subject string
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for the protected routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not configured")
			}
			signed, err := srv.SignJWT(subject, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "subject", "ops", "token subject claim")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	root.AddCommand(serve, migrate, ingestCmd, token)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
