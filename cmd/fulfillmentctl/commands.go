package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fulfillment-be/internal/app"
	"fulfillment-be/internal/broker"
	"fulfillment-be/internal/scheduler"
	"fulfillment-be/internal/shipping"

	"github.com/spf13/cobra"
)

// loader opens the application container on first use.
type loader func(ctx context.Context) (*app.App, error)

func newRootCmd(load loader) *cobra.Command {
	root := &cobra.Command{
		Use:          "fulfillmentctl",
		Short:        "Operate the fulfillment backend: stock, shipments, outbox and jobs",
		SilenceUsage: true,
	}

	root.AddCommand(
		bootstrapCmd(load),
		restockCmd(load),
		reapCmd(load),
		relayCmd(load),
		orderTotalCmd(load),
		shipmentAdvanceCmd(load),
		shipmentHistoryCmd(load),
		shipmentSimulateCmd(load),
		eventsTailCmd(load),
		cronStartCmd(load),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func bootstrapCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Ensure the default warehouse exists and is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			w, err := a.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
}

func restockCmd(load loader) *cobra.Command {
	var (
		sku         string
		warehouseID int64
		qty         int
	)
	cmd := &cobra.Command{
		Use:   "restock",
		Short: "Add on-hand stock for a product in a warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if qty <= 0 {
				return errors.New("--qty must be positive")
			}
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}

			p, err := a.Products.FindActiveProduct(ctx, sku)
			if err != nil {
				return err
			}
			if warehouseID == 0 {
				w, err := a.Bootstrap(ctx)
				if err != nil {
					return err
				}
				warehouseID = w.ID
			}

			if err := a.Ledger.Restock(ctx, p.ID, warehouseID, qty); err != nil {
				return err
			}
			rec, err := a.Ledger.Record(ctx, p.ID, warehouseID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s @ warehouse %d: quantity=%d reserved=%d available=%d\n",
				p.SKU, warehouseID, rec.Quantity, rec.Reserved, rec.Available())
			return nil
		},
	}
	cmd.Flags().StringVar(&sku, "sku", "", "product SKU")
	cmd.Flags().Int64Var(&warehouseID, "warehouse", 0, "warehouse id (default: the active default warehouse)")
	cmd.Flags().IntVar(&qty, "qty", 0, "units to add")
	_ = cmd.MarkFlagRequired("sku")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func reapCmd(load loader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Release reservations whose hold has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Ledger.ReleaseExpired(cmd.Context(), time.Now(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d expired reservations\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum reservations to release")
	return cmd
}

func relayCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish one batch of pending outbox events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Relay.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", n)
			return err
		},
	}
}

func orderTotalCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "order:total <order-id>",
		Short: "Print an order total, served from cache when present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			total, err := a.Orders.GetOrderTotal(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), total)
			return nil
		},
	}
}

func shipmentAdvanceCmd(load loader) *cobra.Command {
	var location, description string
	cmd := &cobra.Command{
		Use:   "shipment:advance <tracking-number> <status>",
		Short: "Move a shipment to the next status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := shipping.ParseStatus(args[1])
			if err != nil {
				return err
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			sh, err := a.Shipments.Advance(cmd.Context(), args[0], to, location, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", sh.TrackingNumber, sh.Status.Display())
			return nil
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "where the change happened")
	cmd.Flags().StringVar(&description, "description", "", "event description (default: canned text)")
	return cmd
}

func shipmentHistoryCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "shipment:history <tracking-number>",
		Short: "List a shipment's events, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			events, err := a.Shipments.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %-20s  %s\n",
					e.EventTime.Format(time.RFC3339), e.Status.Display(), e.Location, e.Description)
			}
			return nil
		},
	}
}

func shipmentSimulateCmd(load loader) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "shipment:simulate <tracking-number>",
		Short: "Walk a shipment forward with simulated carrier scans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			for i := 0; i < steps; i++ {
				sh, err := a.Shipments.SimulateProgress(cmd.Context(), args[0])
				if errors.Is(err, shipping.ErrTerminalState) {
					fmt.Fprintln(cmd.OutOrStdout(), "shipment already in a terminal state")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", sh.TrackingNumber, sh.Status.Display())
				if sh.Status.Terminal() {
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of steps to advance")
	return cmd
}

func eventsTailCmd(load loader) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events:tail",
		Short: "Print domain events from the broker until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			if len(a.Config.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is not configured")
			}

			c := broker.NewConsumer(a.Config.KafkaBrokers, a.Config.KafkaTopic, group)
			defer c.Close()

			err = c.Consume(cmd.Context(), func(ctx context.Context, key, value []byte) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", key, value)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&group, "group", "fulfillmentctl-tail", "consumer group id")
	return cmd
}

func cronStartCmd(load loader) *cobra.Command {
	var jobName string
	cmd := &cobra.Command{
		Use:   "cron:start",
		Short: "Start the job scheduler or run a single job by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			s, err := scheduler.New(a.Jobs()...)
			if err != nil {
				return err
			}

			if jobName != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "running job %s\n", jobName)
				return s.RunNow(ctx, jobName)
			}

			s.Start()
			fmt.Fprintln(cmd.OutOrStdout(), "scheduler started, press Ctrl+C to exit")
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return s.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVarP(&jobName, "job", "j", "", "run a single job by name and exit")
	return cmd
}
