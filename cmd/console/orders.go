package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/store"
	appsync "github.com/nhle/order-console/internal/sync"
)

func newOrdersCmd() *cobra.Command {
	var (
		status  string
		payment string
		limit   int
		cached  bool
	)

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders, newest first",
		Long: `List orders, newest first. The list is fetched from the API and cached
locally; --cached prints the cache without contacting the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := store.OrderFilter{Limit: limit}
			if status != "" {
				if err := model.ValidateValue(model.FieldOrderStatus, status); err != nil {
					return err
				}
				s := model.OrderStatus(status)
				filter.OrderStatus = &s
			}
			if payment != "" {
				if err := model.ValidateValue(model.FieldPaymentStatus, payment); err != nil {
					return err
				}
				p := model.PaymentStatus(payment)
				filter.PaymentStatus = &p
			}

			e, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if !cached {
				poller := appsync.New(e.session.Client(), e.store, time.Minute)
				if res := poller.SyncOnce(cmd.Context()); res.Error != nil {
					return fmt.Errorf("fetching orders: %w", res.Error)
				}
			}

			orders, err := e.store.GetOrders(cmd.Context(), filter)
			if err != nil {
				return err
			}
			renderOrders(orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only orders with this order status")
	cmd.Flags().StringVar(&payment, "payment", "", "only orders with this payment status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of orders")
	cmd.Flags().BoolVar(&cached, "cached", false, "print the local cache only")
	return cmd
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderOrders(orders []model.OrderSummary) {
	if len(orders) == 0 {
		fmt.Println(text.FgYellow.Sprint("No orders found"))
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Items", "Total", "Method", "Payment", "Status", "Created"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	for _, o := range orders {
		t.AppendRow(table.Row{
			o.ID,
			o.Items(),
			fmt.Sprintf("%.2f", o.TotalPrice),
			o.Payment.PaymentMethod.Label(),
			paymentColor(o.Payment.PaymentStatus).Sprint(o.Payment.PaymentStatus),
			statusColor(o.OrderStatus).Sprint(o.OrderStatus),
			o.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d orders", len(orders))})
	t.Render()
}

func statusColor(s model.OrderStatus) text.Colors {
	switch s {
	case model.OrderStatusPending:
		return text.Colors{text.FgYellow}
	case model.OrderStatusPreparation:
		return text.Colors{text.FgCyan}
	case model.OrderStatusOnTheWay:
		return text.Colors{text.FgBlue}
	case model.OrderStatusDelivered:
		return text.Colors{text.FgGreen}
	case model.OrderStatusCancelled:
		return text.Colors{text.FgHiBlack}
	}
	return text.Colors{}
}

func paymentColor(s model.PaymentStatus) text.Colors {
	if s == model.PaymentStatusPaid {
		return text.Colors{text.FgGreen}
	}
	return text.Colors{text.FgRed}
}

func newActivityCmd() *cobra.Command {
	var (
		orderID  string
		unread   bool
		limit    int
		markRead bool
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the local activity log",
		Long: `Show what the console has seen: changes made by other admins, your
own edits, suppressed echoes, failed fetches and new orders.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			acts, err := e.store.GetActivities(ctx, store.ActivityFilter{
				OrderID:    orderID,
				UnreadOnly: unread,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			if len(acts) == 0 {
				fmt.Println(text.FgYellow.Sprint("No activity"))
			} else {
				t := newTable()
				t.AppendHeader(table.Row{"Time", "Order", "Kind", "Message", ""})
				for _, a := range acts {
					mark := ""
					if !a.Read {
						mark = text.FgHiCyan.Sprint("●")
					}
					t.AppendRow(table.Row{
						a.CreatedAt.Local().Format("01-02 15:04:05"),
						a.OrderID,
						a.Kind,
						a.Message,
						mark,
					})
				}
				t.Render()
			}

			if markRead {
				return e.store.MarkAllActivityRead(ctx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&orderID, "order", "", "only entries for this order")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread entries")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark every entry read afterwards")
	return cmd
}
