package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dapurku/backend/internal/config"
	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/service"
	"dapurku/backend/internal/store"
	pgstore "dapurku/backend/internal/store/postgres"
)

var Version = "dev"

// operator is the actor every p2pctl read runs as.
var operator = domain.Actor{Username: "p2pctl", Role: domain.RoleCEO}

type openFunc func(ctx context.Context, databaseURL string) (store.Repository, func() error, error)

type app struct {
	cfg    config.Config
	logger *logrus.Logger
	open   openFunc
}

func main() {
	cfg := config.Load()
	a := &app{
		cfg:    cfg,
		logger: config.NewLogger(cfg.LogLevel),
		open:   openPostgres,
	}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openPostgres(ctx context.Context, databaseURL string) (store.Repository, func() error, error) {
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pg, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "p2pctl",
		Short:         "Operator tooling for the procurement backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cfg.DatabaseURL, "database-url", a.cfg.DatabaseURL, "postgres connection string (defaults to DATABASE_URL)")

	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.onHandCmd())
	root.AddCommand(a.outliersCmd())
	root.AddCommand(a.matchCmd())
	return root
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if a.cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			pg, err := pgstore.New(ctx, a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.logger.Info("schema is up to date")
			return nil
		},
	}
}

func (a *app) onHandCmd() *cobra.Command {
	var locationID, itemID int64
	cmd := &cobra.Command{
		Use:   "on-hand",
		Short: "Print the ledger-derived on-hand quantity of an item at a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.OnHand(ctx, locationID, itemID)
			})
		},
	}
	cmd.Flags().Int64Var(&locationID, "location", 0, "branch id")
	cmd.Flags().Int64Var(&itemID, "item", 0, "item id")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func (a *app) outliersCmd() *cobra.Command {
	var (
		locationID int64
		vendorID   int64
		threshold  float64
		window     int
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "outliers",
		Short: "List a vendor's latest prices that deviate from their rolling baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := domain.OutlierQuery{LocationID: locationID, VendorID: vendorID, Limit: limit}
			if cmd.Flags().Changed("threshold") {
				q.ThresholdPct = &threshold
			}
			if cmd.Flags().Changed("window") {
				q.Window = &window
			}
			return a.withService(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				rows, err := svc.VendorOutliers(ctx, q)
				if rows == nil && err == nil {
					rows = []domain.VendorOutlier{}
				}
				return rows, err
			})
		},
	}
	cmd.Flags().Int64Var(&locationID, "location", 0, "branch id")
	cmd.Flags().Int64Var(&vendorID, "vendor", 0, "vendor id")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum absolute percent change (defaults to PRICE_ALERT_THRESHOLD_PCT)")
	cmd.Flags().IntVar(&window, "window", 0, "baseline window size (defaults to PRICE_BASELINE_WINDOW)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("vendor")
	return cmd
}

func (a *app) matchCmd() *cobra.Command {
	var invoiceID int64
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Print the three-way match of an invoice against its order and receipts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.GetThreeWayMatch(ctx, invoiceID)
			})
		},
	}
	cmd.Flags().Int64Var(&invoiceID, "invoice", 0, "invoice id")
	_ = cmd.MarkFlagRequired("invoice")
	return cmd
}

// withService opens the repository, runs fn as the operator and prints the
// result as indented JSON.
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	repo, closeFn, err := a.open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			config.LogError(a.logger, "p2pctl", "withService", "close", nil, err)
		}
	}()

	svc := service.New(repo, service.Options{
		Logger: a.logger,
		Policy: service.Policy{
			PaymentTolerance: a.cfg.PaymentTolerance,
			ThresholdPct:     a.cfg.PriceAlertThresholdPct,
			BaselineWindow:   a.cfg.PriceBaselineWindow,
		},
	})
	result, err := fn(service.WithActor(ctx, operator), svc)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
