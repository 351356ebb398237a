// Package cli реализует orderctl: клиент командной строки к сервису заказов.
package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
)

const (
	defaultAddr    = "localhost:50051"
	defaultTimeout = 5 * time.Second
)

// commandPublisher публикует команды в Kafka.
type commandPublisher interface {
	PublishCommand(cmd *kafka.OrderCommand) error
	Close() error
}

// connector открывает соединения к внешним системам; в тестах подменяется.
type connector struct {
	dial    func(addr string) (grpc.ClientConnInterface, func() error, error)
	publish func(brokers []string) (commandPublisher, error)
}

type options struct {
	addr       string
	timeout    time.Duration
	jsonOutput bool
	brokers    string

	conn connector
}

func defaultConnector() connector {
	return connector{
		dial: func(addr string) (grpc.ClientConnInterface, func() error, error) {
			conn, err := grpcsvc.Dial(addr)
			if err != nil {
				return nil, nil, err
			}
			return conn, conn.Close, nil
		},
		publish: func(brokers []string) (commandPublisher, error) {
			return kafka.NewProducer(brokers)
		},
	}
}

func newRootCmd(conn connector) *cobra.Command {
	opts := &options{conn: conn}

	cmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Manage orders through the ordercore gRPC API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr := os.Getenv("OMS_GRPC_TARGET")
	if addr == "" {
		addr = defaultAddr
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", addr, "order service address (env OMS_GRPC_TARGET)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print raw JSON instead of a table")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newCreateCmd(opts))
	cmd.AddCommand(newDraftCmd(opts))
	cmd.AddCommand(newAddItemCmd(opts))
	cmd.AddCommand(newConfirmCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newEnqueueCmd(opts))
	return cmd
}

// Execute запускает orderctl.
func Execute() error {
	return newRootCmd(defaultConnector()).Execute()
}

// withClient открывает соединение, вызывает fn и закрывает соединение.
func (o *options) withClient(cmd *cobra.Command, fn func(ctx context.Context, client *grpcsvc.Client) error) error {
	conn, closeFn, err := o.conn.dial(o.addr)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	return fn(ctx, grpcsvc.NewClient(conn))
}

func (o *options) brokerList() []string {
	raw := o.brokers
	if raw == "" {
		raw = os.Getenv("KAFKA_BROKERS")
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
