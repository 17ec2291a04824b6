package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hanko-field/storefront/internal/services"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Edit a user's cart",
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show the raw cart, creating it when missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := a.services().Carts.GetOrCreateCart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cart)
		},
	}

	itemCmd := func(use, short string, run func(*cobra.Command, services.CartItemCommand) (services.Cart, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <user-id> <product-id> <quantity>",
			Short: short,
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty, err := strconv.Atoi(args[2])
				if err != nil {
					return errors.New("quantity must be an integer")
				}
				cart, err := run(cmd, services.CartItemCommand{UserID: args[0], ProductID: args[1], Quantity: qty})
				if err != nil {
					return err
				}
				return a.print(cart)
			},
		}
	}
	add := itemCmd("add", "Add units of a product", func(cmd *cobra.Command, c services.CartItemCommand) (services.Cart, error) {
		return a.services().Carts.AddItem(cmd.Context(), c)
	})
	set := itemCmd("set", "Set the quantity of a line", func(cmd *cobra.Command, c services.CartItemCommand) (services.Cart, error) {
		return a.services().Carts.SetQuantity(cmd.Context(), c)
	})
	change := itemCmd("change", "Change the quantity of a line by a delta", func(cmd *cobra.Command, c services.CartItemCommand) (services.Cart, error) {
		return a.services().Carts.ChangeQuantity(cmd.Context(), c)
	})

	remove := &cobra.Command{
		Use:   "remove <user-id> <product-id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := a.services().Carts.RemoveItem(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(cart)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <user-id>",
		Short: "Remove every line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := a.services().Carts.ClearCart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cart)
		},
	}

	merge := &cobra.Command{
		Use:   "merge <source-user-id> <target-user-id>",
		Short: "Fold one user's cart into another's",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := a.services().Carts.MergeCarts(cmd.Context(), services.MergeCartsCommand{SourceUserID: args[0], TargetUserID: args[1]})
			if err != nil {
				return err
			}
			return a.print(cart)
		},
	}

	cmd.AddCommand(show, add, set, change, remove, clearCmd, merge)
	return cmd
}

func newPriceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "price <user-id>",
		Short: "Price a cart against the live catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := a.services().Pricing.PriceCart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if detail == nil {
				return errors.New("user has no cart")
			}
			return a.print(detail)
		},
	}
}

// addressFlags binds one address to flags named prefix-field.
type addressFlags struct {
	prefix string
	addr   services.Address
}

func (f *addressFlags) register(fs *pflag.FlagSet, label string) {
	fs.StringVar(&f.addr.Recipient, f.prefix+"-recipient", "", label+" recipient")
	fs.StringVar(&f.addr.PostalCode, f.prefix+"-postal-code", "", label+" postal code")
	fs.StringVar(&f.addr.Prefecture, f.prefix+"-prefecture", "", label+" prefecture")
	fs.StringVar(&f.addr.City, f.prefix+"-city", "", label+" city")
	fs.StringVar(&f.addr.Line1, f.prefix+"-line1", "", label+" address line 1")
	fs.StringVar(&f.addr.Line2, f.prefix+"-line2", "", label+" address line 2")
	fs.StringVar(&f.addr.Phone, f.prefix+"-phone", "", label+" phone")
}

// value returns nil when no flag of the address was given.
func (f *addressFlags) value(fs *pflag.FlagSet) *services.Address {
	set := false
	fs.Visit(func(flag *pflag.Flag) {
		if strings.HasPrefix(flag.Name, f.prefix+"-") {
			set = true
		}
	})
	if !set {
		return nil
	}
	addr := f.addr
	return &addr
}

func newCheckoutCmd(a *app) *cobra.Command {
	ship := &addressFlags{prefix: "ship"}
	bill := &addressFlags{prefix: "bill"}
	var orderOnly bool

	cmd := &cobra.Command{
		Use:   "checkout <user-id>",
		Short: "Place an order from the cart and open its payment session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			placeCmd := services.PlaceOrderCommand{
				UserID:          args[0],
				ShippingAddress: ship.value(cmd.Flags()),
				BillingAddress:  bill.value(cmd.Flags()),
			}
			if orderOnly {
				order, err := a.services().Checkout.PlaceOrder(cmd.Context(), placeCmd)
				if err != nil {
					return err
				}
				return a.print(order)
			}
			result, err := a.services().Checkout.Checkout(cmd.Context(), placeCmd)
			if err != nil && result.Order.ID == "" {
				return err
			}
			if printErr := a.print(result); printErr != nil {
				return printErr
			}
			return err
		},
	}
	ship.register(cmd.Flags(), "shipping")
	bill.register(cmd.Flags(), "billing")
	cmd.Flags().BoolVar(&orderOnly, "order-only", false, "place the order without opening a payment session")
	return cmd
}
