package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hanko-field/storefront/internal/services"
)

func newOrderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and move orders through their lifecycle",
	}

	get := &cobra.Command{
		Use:   "get <order-id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := a.services().Orders.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(order)
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an order and return its stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := a.services().Orders.CancelOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(order)
		},
	}

	status := &cobra.Command{
		Use:   "status <order-id> <pending|paid|completed|cancelled>",
		Short: "Move an order to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := a.services().Orders.TransitionStatus(cmd.Context(), args[0], services.OrderStatus(args[1]))
			if err != nil {
				return err
			}
			return a.print(order)
		},
	}

	ship := &addressFlags{prefix: "ship"}
	bill := &addressFlags{prefix: "bill"}
	address := &cobra.Command{
		Use:   "address <order-id>",
		Short: "Replace the shipping or billing address of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shipping, billing := ship.value(cmd.Flags()), bill.value(cmd.Flags())
			if shipping == nil && billing == nil {
				return errors.New("no address flags given")
			}
			var (
				order services.Order
				err   error
			)
			if shipping != nil {
				if order, err = a.services().Orders.SetShippingAddress(cmd.Context(), args[0], *shipping); err != nil {
					return err
				}
			}
			if billing != nil {
				if order, err = a.services().Orders.SetBillingAddress(cmd.Context(), args[0], *billing); err != nil {
					return err
				}
			}
			return a.print(order)
		},
	}
	ship.register(address.Flags(), "shipping")
	bill.register(address.Flags(), "billing")

	cmd.AddCommand(get, cancel, status, address)
	return cmd
}

func newPaymentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Track payments opened at checkout",
	}

	get := &cobra.Command{
		Use:   "get <payment-id>",
		Short: "Show a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payment, err := a.services().Payments.GetPayment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(payment)
		},
	}

	sync := &cobra.Command{
		Use:   "sync <payment-id>",
		Short: "Pull the payment state from the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payment, err := a.services().Payments.SyncPayment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(payment)
		},
	}

	refund := &cobra.Command{
		Use:   "refund <payment-id>",
		Short: "Refund a settled payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payment, err := a.services().Payments.RefundPayment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(payment)
		},
	}

	var intentID string
	transition := &cobra.Command{
		Use:   "transition <payment-id> <succeeded|failed|refunded>",
		Short: "Record a payment outcome reported out of band",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payment, err := a.services().Payments.TransitionPayment(cmd.Context(), services.PaymentTransitionCommand{
				PaymentID: args[0],
				Status:    services.PaymentStatus(args[1]),
				IntentID:  intentID,
			})
			if err != nil {
				return err
			}
			return a.print(payment)
		},
	}
	transition.Flags().StringVar(&intentID, "intent", "", "provider payment intent id")

	cmd.AddCommand(get, sync, refund, transition)
	return cmd
}

func newShipmentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shipment",
		Short: "Track delivery of paid orders",
	}

	create := &cobra.Command{
		Use:   "create <order-id>",
		Short: "Open a shipment for a paid order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shipment, err := a.services().Shipments.CreateShipment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(shipment)
		},
	}

	get := &cobra.Command{
		Use:   "get <shipment-id>",
		Short: "Show a shipment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shipment, err := a.services().Shipments.GetShipment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(shipment)
		},
	}

	var carrier, tracking string
	transition := &cobra.Command{
		Use:   "transition <shipment-id> <shipped|in_transit|delivered|returned|lost>",
		Short: "Move a shipment to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			shipment, err := a.services().Shipments.TransitionShipment(cmd.Context(), services.ShipmentTransitionCommand{
				ShipmentID: args[0],
				Status:     services.ShipmentStatus(args[1]),
				Carrier:    carrier,
				TrackingID: tracking,
			})
			if err != nil {
				return err
			}
			return a.print(shipment)
		},
	}
	transition.Flags().StringVar(&carrier, "carrier", "", "carrier name, required when shipping")
	transition.Flags().StringVar(&tracking, "tracking", "", "tracking number, required when shipping")

	cmd.AddCommand(create, get, transition)
	return cmd
}
