package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hanko-field/storefront/internal/cartsync"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the cart",
	}
	cmd.AddCommand(
		newCartShowCmd(a),
		newCartAddCmd(a),
		newCartRemoveCmd(a),
		newCartSetCmd(a),
		newCartClearCmd(a),
		newCartQuoteCmd(a),
	)
	return cmd
}

func newCartShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printCart(cmd.OutOrStdout(), a.engine.Snapshot())
			return nil
		},
	}
}

func newCartAddCmd(a *app) *cobra.Command {
	var (
		line  cartsync.Line
		price string
	)
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			unit, err := decimal.NewFromString(price)
			if err != nil || unit.IsNegative() {
				return fmt.Errorf("invalid price %q", price)
			}
			line.ProductID = id
			line.UnitPrice = unit
			state := a.engine.AddLine(cmd.Context(), line)
			printCart(cmd.OutOrStdout(), state)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&line.Name, "name", "", "product name")
	flags.StringVar(&price, "price", "0", "unit price")
	flags.IntVarP(&line.Quantity, "quantity", "q", 1, "quantity to add")
	flags.StringVar(&line.Size, "size", "", "selected size")
	flags.StringVar(&line.Color, "color", "", "selected colour")
	flags.StringVar(&line.Image, "image", "", "image URL")
	flags.StringVar(&line.Category, "category", "", "product category")
	return cmd
}

func newCartRemoveCmd(a *app) *cobra.Command {
	var size, color string
	cmd := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product; --size and --color narrow which variants go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			state := a.engine.RemoveLine(cmd.Context(), id, selectorFromFlags(cmd, size, color))
			printCart(cmd.OutOrStdout(), state)
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "only remove this size")
	cmd.Flags().StringVar(&color, "color", "", "only remove this colour")
	return cmd
}

func newCartSetCmd(a *app) *cobra.Command {
	var size, color string
	cmd := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set the quantity of a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			quantity, err := strconv.Atoi(args[1])
			if err != nil || quantity < 1 {
				return fmt.Errorf("quantity must be a positive integer, got %q", args[1])
			}
			state := a.engine.SetQuantity(cmd.Context(), id, quantity, selectorFromFlags(cmd, size, color))
			printCart(cmd.OutOrStdout(), state)
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "only change this size")
	cmd.Flags().StringVar(&color, "color", "", "only change this colour")
	return cmd
}

func newCartClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printCart(cmd.OutOrStdout(), a.engine.Clear(cmd.Context()))
			return nil
		},
	}
}

func newCartQuoteCmd(a *app) *cobra.Command {
	var shipping string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price the cart for checkout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			method, err := cartsync.ParseShippingMethod(shipping)
			if err != nil {
				return err
			}
			state := a.engine.Snapshot()
			if state.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "cart is empty")
				return nil
			}
			summary := cartsync.Quote(state, method)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Items\t%s\n", money(summary.Items))
			if summary.Discount.IsPositive() {
				fmt.Fprintf(w, "Member discount\t-%s\n", money(summary.Discount))
			}
			fmt.Fprintf(w, "Shipping (%s)\t%s\n", method, money(summary.Shipping))
			fmt.Fprintf(w, "Tax\t%s\n", money(summary.Tax))
			fmt.Fprintf(w, "Total\t%s\n", money(summary.Total))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&shipping, "shipping", "standard", "shipping method: standard or express")
	return cmd
}

func selectorFromFlags(cmd *cobra.Command, size, color string) cartsync.Selector {
	sel := cartsync.AnyVariant()
	if cmd.Flags().Changed("size") {
		sel = sel.WithSize(size)
	}
	if cmd.Flags().Changed("color") {
		sel = sel.WithColor(color)
	}
	return sel
}

func parseProductID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("product id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func printCart(out io.Writer, state cartsync.State) {
	if state.Empty() {
		fmt.Fprintf(out, "cart (%s) is empty\n", state.Identity)
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tCOLOR\tQTY\tPRICE\tTOTAL")
	for _, line := range state.Lines {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			line.ProductID, line.Name, dash(line.Size), dash(line.Color), line.Quantity,
			money(line.UnitPrice), money(line.LineTotal()))
	}
	totals := state.Totals()
	fmt.Fprintf(w, "\t\t\t\t%d\tSubtotal\t%s\n", totals.TotalItems, money(totals.Subtotal))
	if totals.Discount.IsPositive() {
		fmt.Fprintf(w, "\t\t\t\t\tMember discount\t-%s\n", money(totals.Discount))
	}
	fmt.Fprintf(w, "\t\t\t\t\tTotal\t%s\n", money(totals.DiscountedTotal))
	_ = w.Flush()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
