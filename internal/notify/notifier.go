package notify

import (
	"context"

	"github.com/flowyard/flowyard/internal/storage"
)

// Notifier wires the gate to the dispatcher: scan, send, mark.
type Notifier struct {
	gate       *Gate
	dispatcher *Dispatcher
}

// NewNotifier creates a notifier over the given store and dispatcher.
func NewNotifier(store storage.Storage, dispatcher *Dispatcher) *Notifier {
	return &Notifier{gate: NewGate(store), dispatcher: dispatcher}
}

// Flush dispatches every pending event for the demand. A failed delivery
// leaves the flag unset and moves on; the event retries on the next flush.
// The returned results cover every attempted event in order.
func (n *Notifier) Flush(ctx context.Context, demandID int64, externalID string) ([]DispatchResult, error) {
	events, err := n.gate.Pending(ctx, demandID)
	if err != nil {
		return nil, err
	}

	results := make([]DispatchResult, 0, len(events))
	for _, ev := range events {
		res := n.dispatcher.Send(ctx, &Payload{
			Type:       string(ev.Kind),
			DemandID:   ev.DemandID,
			ExternalID: externalID,
			RefID:      ev.RefID,
			At:         ev.At,
		})
		if res.Success {
			if err := n.gate.Mark(ctx, ev); err != nil {
				return results, err
			}
		}
		results = append(results, res)
	}
	return results, nil
}
