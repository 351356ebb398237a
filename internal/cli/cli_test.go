package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
	"github.com/vladislavdragonenkov/ordercore/internal/service/orders"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
)

type recordingPublisher struct {
	published []*kafka.OrderCommand
	closed    bool
}

func (p *recordingPublisher) PublishCommand(cmd *kafka.OrderCommand) error {
	p.published = append(p.published, cmd)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func newTestConnector(t *testing.T, publisher *recordingPublisher) connector {
	t.Helper()

	logger := log.WithField("test", "orderctl")
	srv := grpc.NewServer()
	grpcsvc.RegisterOrderServiceServer(srv, grpcsvc.NewOrderService(orders.NewService(memory.NewOrderRepository(), logger), logger))

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return connector{
		dial: func(string) (grpc.ClientConnInterface, func() error, error) {
			return conn, nil, nil
		},
		publish: func(brokers []string) (commandPublisher, error) {
			if publisher == nil {
				return nil, errors.New("no publisher")
			}
			return publisher, nil
		},
	}
}

func run(t *testing.T, conn connector, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(conn)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCreateCommand_JSON(t *testing.T) {
	conn := newTestConnector(t, nil)

	out, err := run(t, conn, "create", "--customer", "cust-1", "--item", "A:2:10.00", "--item", "B:1:5.00", "--json")
	require.NoError(t, err)

	var order grpcsvc.OrderView
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, "CONFIRMED", order.Status)
	assert.Equal(t, "25", order.TotalAmount)
	assert.Len(t, order.Items, 2)
}

func TestDraftLifecycle_Table(t *testing.T) {
	conn := newTestConnector(t, nil)

	out, err := run(t, conn, "draft", "--customer", "cust-2", "--json")
	require.NoError(t, err)
	var draftOrder grpcsvc.OrderView
	require.NoError(t, json.Unmarshal([]byte(out), &draftOrder))
	assert.Equal(t, "DRAFT", draftOrder.Status)

	id := jsonID(draftOrder.ID)

	out, err = run(t, conn, "add-item", id, "SKU-1:3:1.50")
	require.NoError(t, err)
	assert.Contains(t, out, "SKU-1")
	assert.Contains(t, out, "Total 4.5")

	out, err = run(t, conn, "confirm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "CONFIRMED")

	out, err = run(t, conn, "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Order #"+id)

	out, err = run(t, conn, "list", "cust-2")
	require.NoError(t, err)
	assert.Contains(t, out, "cust-2")

	out, err = run(t, conn, "remove", id)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	_, err = run(t, conn, "get", id)
	require.Error(t, err)
}

func TestListCommand_Empty(t *testing.T) {
	conn := newTestConnector(t, nil)

	out, err := run(t, conn, "list", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "no orders")

	out, err = run(t, conn, "list", "nobody", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestCommands_InvalidInput(t *testing.T) {
	conn := newTestConnector(t, nil)

	_, err := run(t, conn, "create", "--customer", "cust-1", "--item", "A:two:10")
	assert.Error(t, err)

	_, err = run(t, conn, "get", "abc")
	assert.Error(t, err)

	_, err = run(t, conn, "create", "--customer", "cust-1")
	assert.Error(t, err, "order without items must be rejected by the service")
}

func TestEnqueueCommands(t *testing.T) {
	publisher := &recordingPublisher{}
	conn := newTestConnector(t, publisher)

	out, err := run(t, conn, "enqueue", "create", "--brokers", "kafka:9092", "--customer", "cust-3", "--item", "A:1:2.50")
	require.NoError(t, err)
	assert.Contains(t, out, "create_order")

	_, err = run(t, conn, "enqueue", "add-item", "7", "B:2:1", "--brokers", "kafka:9092")
	require.NoError(t, err)

	require.Len(t, publisher.published, 2)
	assert.Equal(t, kafka.CommandCreateOrder, publisher.published[0].Type)
	assert.Equal(t, "cust-3", publisher.published[0].CustomerID)
	assert.Equal(t, int64(7), publisher.published[1].OrderID)
	assert.True(t, publisher.closed)
}

func TestEnqueue_RequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	conn := newTestConnector(t, &recordingPublisher{})

	_, err := run(t, conn, "enqueue", "create", "--customer", "cust-3", "--item", "A:1:1")
	assert.ErrorIs(t, err, errNoBrokers)
}

func TestParseItem(t *testing.T) {
	item, err := parseItem(" A : 2 : 10.50 ")
	require.NoError(t, err)
	assert.Equal(t, "A", item.ProductID)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "10.5", item.UnitPrice.String())

	for _, raw := range []string{"A:2", "A:x:1", "A:1:abc"} {
		_, err := parseItem(raw)
		assert.Error(t, err, raw)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, newTestConnector(t, nil), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version=")
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
