package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
)

var errNoBrokers = errors.New("kafka brokers are not configured (use --brokers or KAFKA_BROKERS)")

func newEnqueueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish order commands to Kafka instead of calling the API",
	}
	cmd.PersistentFlags().StringVar(&opts.brokers, "brokers", "", "comma separated Kafka brokers (env KAFKA_BROKERS)")

	cmd.AddCommand(newEnqueueCreateCmd(opts))
	cmd.AddCommand(newEnqueueAddItemCmd(opts))
	return cmd
}

func toCommandItems(items []parsedItem) []kafka.CommandItem {
	out := make([]kafka.CommandItem, 0, len(items))
	for _, item := range items {
		out = append(out, kafka.CommandItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}

func (o *options) publish(cmd *cobra.Command, command *kafka.OrderCommand) error {
	brokers := o.brokerList()
	if len(brokers) == 0 {
		return errNoBrokers
	}

	publisher, err := o.conn.publish(brokers)
	if err != nil {
		return err
	}
	defer publisher.Close()

	if err := publisher.PublishCommand(command); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("command %s (%s) published to %s", command.CommandID, command.Type, kafka.TopicOrderCommands)))
	return nil
}

func newEnqueueCreateCmd(opts *options) *cobra.Command {
	var (
		customer string
		rawItems []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a create_order command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(rawItems)
			if err != nil {
				return err
			}
			return opts.publish(cmd, kafka.NewCreateOrderCommand(customer, toCommandItems(items)))
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id")
	cmd.Flags().StringArrayVar(&rawItems, "item", nil, "item as product:quantity:price (repeatable)")
	return cmd
}

func newEnqueueAddItemCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-item <order-id> <product:quantity:price>",
		Short: "Publish an add_item command",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			item, err := parseItem(args[1])
			if err != nil {
				return err
			}
			return opts.publish(cmd, kafka.NewAddItemCommand(id, toCommandItems([]parsedItem{item})[0]))
		},
	}
}
