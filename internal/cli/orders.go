package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
)

func toItemInputs(items []parsedItem) []grpcsvc.ItemInput {
	inputs := make([]grpcsvc.ItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, grpcsvc.ItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
		})
	}
	return inputs
}

func newCreateCmd(opts *options) *cobra.Command {
	var (
		customer string
		rawItems []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and confirm an order from items",
		Example: `  orderctl create --customer cust-1 --item A:2:10.00 --item B:1:5.00`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(rawItems)
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				order, err := client.CreateOrder(ctx, customer, toItemInputs(items))
				if err != nil {
					return err
				}
				return renderOrder(cmd, opts, order)
			})
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id")
	cmd.Flags().StringArrayVar(&rawItems, "item", nil, "item as product:quantity:price (repeatable)")
	return cmd
}

func newDraftCmd(opts *options) *cobra.Command {
	var customer string

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create an empty draft order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				order, err := client.CreateDraft(ctx, customer)
				if err != nil {
					return err
				}
				return renderOrder(cmd, opts, order)
			})
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id")
	return cmd
}

func newAddItemCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "add-item <order-id> <product:quantity:price>",
		Short:   "Add an item to a draft order",
		Example: `  orderctl add-item 42 A:1:9.99`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			item, err := parseItem(args[1])
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				order, err := client.AddItem(ctx, id, toItemInputs([]parsedItem{item})[0])
				if err != nil {
					return err
				}
				return renderOrder(cmd, opts, order)
			})
		},
	}
}

// orderIDCmd строит команду с единственным аргументом order-id.
func orderIDCmd(opts *options, use, short string, call func(ctx context.Context, client *grpcsvc.Client, id int64) (grpcsvc.OrderView, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <order-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				order, err := call(ctx, client, id)
				if err != nil {
					return err
				}
				return renderOrder(cmd, opts, order)
			})
		},
	}
}

func newConfirmCmd(opts *options) *cobra.Command {
	return orderIDCmd(opts, "confirm", "Confirm a draft order", func(ctx context.Context, client *grpcsvc.Client, id int64) (grpcsvc.OrderView, error) {
		return client.ConfirmOrder(ctx, id)
	})
}

func newGetCmd(opts *options) *cobra.Command {
	return orderIDCmd(opts, "get", "Show an order", func(ctx context.Context, client *grpcsvc.Client, id int64) (grpcsvc.OrderView, error) {
		return client.GetOrder(ctx, id)
	})
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list <customer-id>",
		Short: "List orders of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				list, err := client.ListOrders(ctx, args[0])
				if err != nil {
					return err
				}
				return renderOrders(cmd, opts, list)
			})
		},
	}
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <order-id>",
		Short: "Remove an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				if err := client.RemoveOrder(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("order %d removed", id)))
				return nil
			})
		},
	}
}
