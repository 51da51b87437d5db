package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
)

// settleTimeout bounds how long 'set' waits for its change to settle.
const settleTimeout = 10 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <order-id>",
		Short: "Follow the status of one order live",
		Long: `Observe one order and print every change of its status until
interrupted. Changes made by other admins show up after a short delay.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if _, err := e.session.Resume(ctx); err != nil {
				return err
			}
			rec, err := e.session.NewReconciler()
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer rec.Teardown()
				if err := rec.Observe(gctx, args[0]); err != nil {
					return err
				}
				<-gctx.Done()
				return nil
			})
			g.Go(func() error {
				var last string
				for {
					select {
					case <-gctx.Done():
						return nil
					case v := <-rec.Updates():
						if line := formatView(v); line != last {
							fmt.Println(time.Now().Format("15:04:05"), line)
							last = line
						}
					}
				}
			})
			return g.Wait()
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <order-id> <status|payment> <value>",
		Short: "Change the order or payment status of an order",
		Long: `Change one status field of an order the same way the interactive
console does, then print the order once the change has settled.

  console set ord-1002 status ontheway
  console set ord-1002 payment paid`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := parseField(args[1])
			if err != nil {
				return err
			}
			if err := model.ValidateValue(field, args[2]); err != nil {
				return err
			}

			e, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), settleTimeout)
			defer cancel()

			if _, err := e.session.Resume(ctx); err != nil {
				return err
			}
			rec, err := e.session.NewReconciler()
			if err != nil {
				return err
			}
			defer rec.Teardown()

			if err := rec.Observe(ctx, args[0]); err != nil {
				return err
			}
			if err := rec.SubmitLocalChange(field, args[2]); err != nil {
				return err
			}

			v, err := waitSettled(ctx, rec)
			if err != nil {
				return err
			}
			fmt.Println(formatView(v))
			if v.WriteErr != nil {
				return v.WriteErr
			}
			return nil
		},
	}
}

// waitSettled blocks until no guard is armed and nothing is pending.
func waitSettled(ctx context.Context, rec *reconciler.Reconciler) (reconciler.View, error) {
	for {
		v := rec.View()
		if v.WriteErr != nil || (v.State == reconciler.StateIdle && len(v.Guarded) == 0) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, fmt.Errorf("waiting for change to settle: %w", ctx.Err())
		case <-rec.Updates():
		}
	}
}

func parseField(s string) (model.Field, error) {
	switch strings.ToLower(s) {
	case "status", "order", "orderstatus":
		return model.FieldOrderStatus, nil
	case "payment", "paymentstatus":
		return model.FieldPaymentStatus, nil
	}
	return "", fmt.Errorf("unknown field %q, want status or payment: %w", s, model.ErrInvalidValue)
}

func formatView(v reconciler.View) string {
	switch v.Load {
	case reconciler.LoadLoading:
		return v.ResourceID + " loading"
	case reconciler.LoadError:
		if len(v.Lines) == 0 {
			return v.ResourceID + " " + text.FgRed.Sprintf("load failed: %v", v.FetchErr)
		}
	case reconciler.LoadUnobserved:
		return "closed"
	}

	line := fmt.Sprintf("%s order=%s payment=%s [%s]",
		v.ResourceID,
		statusColor(v.OrderStatus).Sprint(v.OrderStatus),
		paymentColor(v.PaymentStatus).Sprint(v.PaymentStatus),
		v.State)
	if v.FetchErr != nil {
		line += " " + text.FgRed.Sprintf("refresh failed: %v", v.FetchErr)
	}
	if v.WriteErr != nil {
		line += " " + text.FgRed.Sprintf("rejected: %v", v.WriteErr)
	}
	return line
}
