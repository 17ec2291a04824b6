package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/di"
	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/services"
)

const demoUser = "demo-user"

// demoStep is one line of the demo transcript.
type demoStep struct {
	Step   string `json:"step"`
	Result any    `json:"result"`
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "demo",
		Short:       "Run a full order lifecycle against an in-memory store",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"bootstrap": "skip"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureLogger(); err != nil {
				return err
			}
			cfg, err := config.Load(cmd.Context(),
				config.WithEnvFile(""),
				config.WithoutSystemEnv(),
				config.WithEnvMap(map[string]string{"STOREFRONT_STORE_BACKEND": config.BackendMemory}),
			)
			if err != nil {
				return err
			}
			gateway := payments.NewLocalGateway("http://localhost:8080/checkout", nil)
			container, err := di.NewContainer(cmd.Context(), cfg, a.logger, di.WithGateway(gateway))
			if err != nil {
				return err
			}
			defer func() {
				if err := container.Close(context.Background()); err != nil {
					a.logger.Warn("demo container close error", zap.Error(err))
				}
			}()

			steps, err := runDemo(cmd.Context(), container.Services, gateway)
			if printErr := a.print(steps); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

// runDemo walks a shopper from an empty cart to a delivered order and returns each
// intermediate result.
func runDemo(ctx context.Context, svc di.Services, gateway *payments.LocalGateway) ([]demoStep, error) {
	var steps []demoStep
	record := func(step string, result any) {
		steps = append(steps, demoStep{Step: step, Result: result})
	}

	stamp, err := svc.Catalog.CreateProduct(ctx, services.ProductInput{Name: "Personal seal", PriceBeforeTax: 2400, TaxRate: 10, Stock: 5})
	if err != nil {
		return steps, fmt.Errorf("create product: %w", err)
	}
	record("product.create", stamp)
	caseProduct, err := svc.Catalog.CreateProduct(ctx, services.ProductInput{Name: "Seal case", PriceBeforeTax: 800, TaxRate: 10, Stock: 1})
	if err != nil {
		return steps, fmt.Errorf("create product: %w", err)
	}
	record("product.create", caseProduct)

	if _, err := svc.Carts.AddItem(ctx, services.CartItemCommand{UserID: demoUser, ProductID: stamp.ID, Quantity: 2}); err != nil {
		return steps, fmt.Errorf("add item: %w", err)
	}
	cart, err := svc.Carts.AddItem(ctx, services.CartItemCommand{UserID: demoUser, ProductID: caseProduct.ID, Quantity: 3})
	if err != nil {
		return steps, fmt.Errorf("add item: %w", err)
	}
	record("cart.add", cart)

	detail, err := svc.Pricing.PriceCart(ctx, demoUser)
	if err != nil {
		return steps, fmt.Errorf("price cart: %w", err)
	}
	record("cart.price", detail)

	// Checkout buys what the catalog can cover.
	if _, err := svc.Carts.SetQuantity(ctx, services.CartItemCommand{UserID: demoUser, ProductID: caseProduct.ID, Quantity: 1}); err != nil {
		return steps, fmt.Errorf("set quantity: %w", err)
	}
	result, err := svc.Checkout.Checkout(ctx, services.PlaceOrderCommand{
		UserID: demoUser,
		ShippingAddress: &services.Address{
			Recipient:  "Demo Shopper",
			PostalCode: "150-0001",
			Prefecture: "Tokyo",
			City:       "Shibuya",
			Line1:      "1-2-3 Jingumae",
		},
	})
	if err != nil {
		return steps, fmt.Errorf("checkout: %w", err)
	}
	record("checkout", result)

	if err := gateway.Settle(result.Session.SessionID, payments.StatusSucceeded); err != nil {
		return steps, fmt.Errorf("settle session: %w", err)
	}
	payment, err := svc.Payments.SyncPayment(ctx, result.Session.PaymentID)
	if err != nil {
		return steps, fmt.Errorf("sync payment: %w", err)
	}
	record("payment.sync", payment)

	shipment, err := svc.Shipments.CreateShipment(ctx, result.Order.ID)
	if err != nil {
		return steps, fmt.Errorf("create shipment: %w", err)
	}
	for _, next := range []services.ShipmentTransitionCommand{
		{ShipmentID: shipment.ID, Status: domain.ShipmentStatusShipped, Carrier: "yamato", TrackingID: "DEMO-0001"},
		{ShipmentID: shipment.ID, Status: domain.ShipmentStatusInTransit},
		{ShipmentID: shipment.ID, Status: domain.ShipmentStatusDelivered},
	} {
		if shipment, err = svc.Shipments.TransitionShipment(ctx, next); err != nil {
			return steps, fmt.Errorf("shipment %s: %w", next.Status, err)
		}
	}
	record("shipment.delivered", shipment)

	order, err := svc.Orders.GetOrder(ctx, result.Order.ID)
	if err != nil {
		return steps, fmt.Errorf("get order: %w", err)
	}
	record("order", order)
	return steps, nil
}
