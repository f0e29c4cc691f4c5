package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cartsync"
	"github.com/hanko-field/storefront/internal/client"
)

var errSignInRequired = errors.New("sign in first: checkout and order history need an account")

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		address        client.ShippingAddress
		payment        string
		shipping       string
		idempotencyKey string
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart and empty it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			identity := a.session.Identity()
			if !identity.IsAuthenticated() {
				return errSignInRequired
			}
			method, err := cartsync.ParseShippingMethod(shipping)
			if err != nil {
				return err
			}
			state := a.engine.Snapshot()
			if state.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "cart is empty")
				return nil
			}
			if err := a.engine.Flush(ctx); err != nil {
				a.logger.Warn("cart flush before checkout failed", zap.Error(err))
			}
			if strings.TrimSpace(idempotencyKey) == "" {
				idempotencyKey = ulid.Make().String()
			}
			order, err := a.api.PlaceOrder(ctx, identity.UserID, client.CheckoutRequest{
				Lines:          state.Lines,
				Address:        address,
				PaymentMethod:  payment,
				ShippingMethod: string(method),
				ExpectedTotal:  cartsync.Quote(state, method).Total,
			}, idempotencyKey)
			if err != nil {
				return describeAPIError("checkout", err)
			}
			a.engine.Clear(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "order %s placed, paid %s by %s\n", order.ID, money(order.TotalPrice), order.PaymentMethod)
			printOrder(out, order)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&address.Address, "address", "", "street address")
	flags.StringVar(&address.City, "city", "", "city")
	flags.StringVar(&address.PostalCode, "postal-code", "", "postal code")
	flags.StringVar(&address.Country, "country", "United States", "country")
	flags.StringVar(&payment, "payment", "card", "payment method: card or paypal")
	flags.StringVar(&shipping, "shipping", "standard", "shipping method: standard or express")
	flags.StringVar(&idempotencyKey, "idempotency-key", "", "retry key; generated when empty")
	for _, name := range []string{"address", "city", "postal-code"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newOrdersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			identity := a.session.Identity()
			if !identity.IsAuthenticated() {
				return errSignInRequired
			}
			orders, err := a.api.MyOrders(cmd.Context(), identity.UserID)
			if err != nil {
				return describeAPIError("list orders", err)
			}
			out := cmd.OutOrStdout()
			if len(orders) == 0 {
				fmt.Fprintln(out, "no orders yet")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPLACED\tITEMS\tTOTAL\tSTATUS")
			for _, order := range orders {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", order.ID, order.CreatedAt, len(order.OrderItems), money(order.TotalPrice), order.Status)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <order-id>",
		Short: "Print one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := a.session.Identity()
			if !identity.IsAuthenticated() {
				return errSignInRequired
			}
			order, err := a.api.OrderDetails(cmd.Context(), identity.UserID, args[0])
			if err != nil {
				return describeAPIError("show order", err)
			}
			printOrder(cmd.OutOrStdout(), order)
			return nil
		},
	})
	return cmd
}

func printOrder(out io.Writer, order client.Order) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Order\t%s (%s)\n", order.ID, order.Status)
	addr := order.ShippingAddress
	fmt.Fprintf(w, "Ship to\t%s, %s %s, %s\n", addr.Address, addr.City, addr.PostalCode, addr.Country)
	for _, item := range order.OrderItems {
		fmt.Fprintf(w, "%d x %s\t%.2f\n", item.Quantity, item.Name, item.Price)
	}
	fmt.Fprintf(w, "Items\t%s\n", money(order.ItemsPrice))
	if order.DiscountPrice.IsPositive() {
		fmt.Fprintf(w, "Member discount\t-%s\n", money(order.DiscountPrice))
	}
	fmt.Fprintf(w, "Shipping (%s)\t%s\n", order.ShippingMethod, money(order.ShippingPrice))
	fmt.Fprintf(w, "Tax\t%s\n", money(order.TaxPrice))
	fmt.Fprintf(w, "Total\t%s\n", money(order.TotalPrice))
	_ = w.Flush()
}
