package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
)

var (
	accent  = lipgloss.Color("#D97706")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	draft   = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle   = lipgloss.NewStyle().Foreground(dim)
	okStyle    = lipgloss.NewStyle().Foreground(success)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)

	statusColors = map[string]lipgloss.Color{
		"CONFIRMED": success,
		"DRAFT":     draft,
	}
)

func statusStyle(status string) lipgloss.Style {
	color, ok := statusColors[status]
	if !ok {
		color = dim
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color)
}

func renderJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderOrder(cmd *cobra.Command, opts *options, order grpcsvc.OrderView) error {
	if opts.jsonOutput {
		return renderJSON(cmd, order)
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatOrder(order))
	return nil
}

func renderOrders(cmd *cobra.Command, opts *options, orders []grpcsvc.OrderView) error {
	if opts.jsonOutput {
		if orders == nil {
			orders = []grpcsvc.OrderView{}
		}
		return renderJSON(cmd, orders)
	}
	if len(orders) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no orders"))
		return nil
	}
	for _, order := range orders {
		fmt.Fprintln(cmd.OutOrStdout(), formatOrder(order))
	}
	return nil
}

func formatOrder(order grpcsvc.OrderView) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Order #%d", order.ID)))
	b.WriteString("  ")
	b.WriteString(statusStyle(order.Status).Render(order.Status))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("customer %s · created %s", order.CustomerID, order.CreatedAt.Format(time.RFC3339))))
	b.WriteString("\n\n")

	if len(order.Items) == 0 {
		b.WriteString(dimStyle.Render("no items"))
		b.WriteString("\n")
	}
	for _, item := range order.Items {
		fmt.Fprintf(&b, "%-16s %4d × %10s = %10s\n", item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Total " + order.TotalAmount))

	return boxStyle.Render(b.String())
}
