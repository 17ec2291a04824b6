package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hanko-field/storefront/internal/services"
)

func newProductCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalog products",
	}

	var input services.ProductInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input.Name == "" {
				return errors.New("--name is required")
			}
			product, err := a.services().Catalog.CreateProduct(cmd.Context(), input)
			if err != nil {
				return err
			}
			return a.print(product)
		},
	}
	create.Flags().StringVar(&input.Name, "name", "", "product name")
	create.Flags().StringVar(&input.Description, "description", "", "product description")
	create.Flags().Int64Var(&input.PriceBeforeTax, "price", 0, "tax-exclusive unit price in yen")
	create.Flags().IntVar(&input.TaxRate, "tax-rate", 10, "tax rate in percent")
	create.Flags().IntVar(&input.Stock, "stock", 0, "initial stock")
	create.Flags().BoolVar(&input.IsFeatured, "featured", false, "list the product as featured")

	get := &cobra.Command{
		Use:   "get <product-id>",
		Short: "Show a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := a.services().Catalog.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(product)
		},
	}

	var (
		name  string
		price int64
		rate  int
	)
	update := &cobra.Command{
		Use:   "update <product-id>",
		Short: "Change product fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch services.ProductPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("price") {
				patch.PriceBeforeTax = &price
			}
			if cmd.Flags().Changed("tax-rate") {
				patch.TaxRate = &rate
			}
			product, err := a.services().Catalog.UpdateProduct(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return a.print(product)
		},
	}
	update.Flags().StringVar(&name, "name", "", "product name")
	update.Flags().Int64Var(&price, "price", 0, "tax-exclusive unit price in yen")
	update.Flags().IntVar(&rate, "tax-rate", 0, "tax rate in percent")

	stock := &cobra.Command{
		Use:   "stock <product-id> <delta>",
		Short: "Add or remove stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.New("delta must be an integer")
			}
			product, err := a.services().Catalog.AdjustStock(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			return a.print(product)
		},
	}

	feature := &cobra.Command{
		Use:   "feature <product-id> <true|false>",
		Short: "Toggle the featured flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			featured, err := strconv.ParseBool(args[1])
			if err != nil {
				return errors.New("featured must be true or false")
			}
			product, err := a.services().Catalog.SetFeatured(cmd.Context(), args[0], featured)
			if err != nil {
				return err
			}
			return a.print(product)
		},
	}

	review := &cobra.Command{
		Use:   "review <product-id>",
		Short: "Count a new review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := a.services().Catalog.RecordReview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(product)
		},
	}

	cmd.AddCommand(create, get, update, stock, feature, review)
	return cmd
}
