package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/keyflip/keyflip/internal/httpapi"
	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/scan"
	"github.com/keyflip/keyflip/internal/scheduler"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one full sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.orchestrator.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("sweep %s: %d targets, %d listings, %d deals, %d alerts, %d errors in %s\n",
				result.SweepID, result.Targets, result.Listings, result.Deals,
				result.Alerts, result.Errors, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic scanner, optionally with the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return scheduler.New(app.orchestrator, app.cfg.Scan.Interval).Run(gctx)
			})
			if app.cfg.HTTP.Enabled {
				server := httpapi.NewServer(app.cfg.HTTP, app.store, app.orchestrator)
				g.Go(func() error {
					return server.ListenAndServe(gctx)
				})
			}

			err = g.Wait()
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func newTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage scan targets",
	}
	cmd.AddCommand(newTargetsListCmd(), newTargetsAddCmd(), newTargetsSeedCmd())
	return cmd
}

func newTargetsSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the curated popular targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			discovery := scan.NewDiscovery(app.store.Targets, app.store.Evaluations,
				app.cfg.Scan.DiscoveryCap, app.cfg.Scan.PerCategorySeeds,
				app.cfg.Scoring.MinConfidence, app.cfg.FX.Reference)
			added, err := discovery.SeedPopular(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d targets\n", added)
			return nil
		},
	}
}

func newTargetsListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scan targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			targets, err := app.store.Targets.List(cmd.Context(), !all)
			if err != nil {
				return err
			}
			for _, t := range targets {
				state := "enabled"
				if !t.Enabled {
					state = "disabled"
				}
				fmt.Printf("%5d  %-30s  %-40q  %s\n", t.ID, t.Name, t.Query, state)
			}
			fmt.Printf("%d targets\n", len(targets))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled targets")
	return cmd
}

func newTargetsAddCmd() *cobra.Command {
	var (
		name     string
		category string
		maxBuy   float64
	)
	cmd := &cobra.Command{
		Use:   "add <query>",
		Short: "Add a scan target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			target := models.Target{
				Name:        name,
				Query:       args[0],
				ListingType: "any",
				Currency:    app.cfg.FX.Reference,
				Enabled:     true,
			}
			if target.Name == "" {
				target.Name = args[0]
			}
			if category != "" {
				target.CategoryPath = []models.CategoryNode{{ID: category}}
			}
			if maxBuy > 0 {
				target.MaxBuy = &maxBuy
			}

			if err := app.store.Targets.Insert(cmd.Context(), &target); err != nil {
				return err
			}
			fmt.Printf("added target %d: %q\n", target.ID, target.Query)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the query)")
	cmd.Flags().StringVar(&category, "category", "", "marketplace category id")
	cmd.Flags().Float64Var(&maxBuy, "max-buy", 0, "maximum total buy price")
	return cmd
}
