package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicledger/civicledger/internal/revenue"
	"github.com/civicledger/civicledger/internal/salary"
)

// Notifier turns workflow events into queued emails. Enqueue failures
// are logged and swallowed so notification problems never fail a
// financial transaction.
type Notifier struct {
	client       *Client
	logger       *slog.Logger
	financeInbox string
}

// NewNotifier builds a notifier. financeInbox receives internal notices
// such as bill approvals.
func NewNotifier(client *Client, logger *slog.Logger, financeInbox string) *Notifier {
	return &Notifier{client: client, logger: logger, financeInbox: financeInbox}
}

func (n *Notifier) enqueue(ctx context.Context, payload SendEmailPayload) {
	if n.client == nil || payload.To == "" {
		return
	}
	if _, err := n.client.EnqueueSendEmail(ctx, payload); err != nil {
		n.logger.Error("enqueue notification failed", "subject", payload.Subject, "error", err)
	}
}

// DemandPosted notifies the payer that a demand has been raised.
func (n *Notifier) DemandPosted(ctx context.Context, d revenue.Demand) {
	n.enqueue(ctx, SendEmailPayload{
		To:      d.PayerEmail,
		Subject: fmt.Sprintf("Demand notice: %s", d.Description),
		Body: fmt.Sprintf("Dear %s,\n\nA demand of %s has been raised against you. Outstanding amount: %s.\n",
			d.PayerName, d.Amount.StringFixed(2), d.Outstanding().StringFixed(2)),
	})
}

// DemandCancelled informs the payer that a demand no longer stands.
func (n *Notifier) DemandCancelled(ctx context.Context, d revenue.Demand, reason string) {
	n.enqueue(ctx, SendEmailPayload{
		To:      d.PayerEmail,
		Subject: fmt.Sprintf("Demand cancelled: %s", d.Description),
		Body: fmt.Sprintf("Dear %s,\n\nThe demand of %s raised against you has been cancelled (%s).\n",
			d.PayerName, d.Amount.StringFixed(2), reason),
	})
}

// CollectionPosted sends a payment receipt.
func (n *Notifier) CollectionPosted(ctx context.Context, c revenue.Collection, d revenue.Demand) {
	n.enqueue(ctx, SendEmailPayload{
		To:      d.PayerEmail,
		Subject: fmt.Sprintf("Payment receipt %s", c.ReceiptNo),
		Body: fmt.Sprintf("Dear %s,\n\nWe received your payment of %s. Remaining outstanding: %s.\n",
			d.PayerName, c.Amount.StringFixed(2), d.Outstanding().StringFixed(2)),
	})
}

// CollectionCancelled informs the payer that a receipt was voided.
func (n *Notifier) CollectionCancelled(ctx context.Context, c revenue.Collection, d revenue.Demand, reason string) {
	n.enqueue(ctx, SendEmailPayload{
		To:      d.PayerEmail,
		Subject: fmt.Sprintf("Receipt %s cancelled", c.ReceiptNo),
		Body: fmt.Sprintf("Dear %s,\n\nYour payment receipt %s for %s was cancelled (%s). Outstanding amount: %s.\n",
			d.PayerName, c.ReceiptNo, c.Amount.StringFixed(2), reason, d.Outstanding().StringFixed(2)),
	})
}

// DemandOverdue reminds the payer of a missed due date.
func (n *Notifier) DemandOverdue(ctx context.Context, d revenue.Demand) {
	n.enqueue(ctx, SendEmailPayload{
		To:      d.PayerEmail,
		Subject: fmt.Sprintf("Overdue demand: %s", d.Description),
		Body: fmt.Sprintf("Dear %s,\n\nYour demand of %s is past due. Outstanding amount: %s.\n",
			d.PayerName, d.Amount.StringFixed(2), d.Outstanding().StringFixed(2)),
	})
}

// BillApproved notifies the finance inbox that budget was consumed.
func (n *Notifier) BillApproved(ctx context.Context, bill salary.Bill) {
	n.enqueue(ctx, SendEmailPayload{
		To:      n.financeInbox,
		Subject: fmt.Sprintf("Salary bill %s approved", bill.Number),
		Body:    fmt.Sprintf("Salary bill %s for %s has been approved and budget consumed.\n", bill.Number, bill.GrossAmount.StringFixed(2)),
	})
}

// BillCancelled notifies the finance inbox that budget was released.
func (n *Notifier) BillCancelled(ctx context.Context, bill salary.Bill, reason string) {
	n.enqueue(ctx, SendEmailPayload{
		To:      n.financeInbox,
		Subject: fmt.Sprintf("Salary bill %s cancelled", bill.Number),
		Body:    fmt.Sprintf("Salary bill %s was cancelled (%s); its budget consumption has been released.\n", bill.Number, reason),
	})
}
