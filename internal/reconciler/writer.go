package reconciler

import (
	"context"
	"fmt"

	"github.com/nhle/order-console/internal/channel"
	"github.com/nhle/order-console/internal/model"
)

// Writer delivers a local change to the backend.
type Writer interface {
	Write(ctx context.Context, intent model.ChangeIntent) error

	// Acknowledged reports whether Write waits for the server to accept
	// the change. Only acknowledged failures revert the optimistic value.
	Acknowledged() bool
}

// Emitter is the sending half of the event channel.
type Emitter interface {
	Emit(event string, payload any) error
}

// ChannelWriter emits change intents over the event channel. Nothing is
// acknowledged; a failed emit is reported but the change stays displayed.
type ChannelWriter struct {
	emitter Emitter
}

// NewChannelWriter returns a fire-and-forget writer over e.
func NewChannelWriter(e Emitter) *ChannelWriter {
	return &ChannelWriter{emitter: e}
}

func (w *ChannelWriter) Write(_ context.Context, in model.ChangeIntent) error {
	switch in.Field {
	case model.FieldOrderStatus:
		return w.emitter.Emit(channel.EventUpdateOrderStatus, channel.OrderStatusIntent{
			Status:  in.Value,
			OrderID: in.ResourceID,
			UserID:  in.ActingUserID,
		})
	case model.FieldPaymentStatus:
		return w.emitter.Emit(channel.EventUpdatePaymentStatus, channel.PaymentStatusIntent{
			PaymentStatus: in.Value,
			PaymentID:     in.PaymentID,
			OrderID:       in.ResourceID,
			UserID:        in.ActingUserID,
		})
	default:
		return fmt.Errorf("unknown field %q: %w", in.Field, model.ErrInvalidValue)
	}
}

func (w *ChannelWriter) Acknowledged() bool { return false }

// StatusUpdater is the REST surface a RESTWriter needs.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error
}

// RESTWriter sends changes as acknowledged PATCH requests. The channel is
// then only an invalidation signal.
type RESTWriter struct {
	client StatusUpdater
}

// NewRESTWriter returns an acknowledged writer over c.
func NewRESTWriter(c StatusUpdater) *RESTWriter {
	return &RESTWriter{client: c}
}

func (w *RESTWriter) Write(ctx context.Context, in model.ChangeIntent) error {
	switch in.Field {
	case model.FieldOrderStatus:
		return w.client.UpdateOrderStatus(ctx, in.ResourceID, model.OrderStatus(in.Value))
	case model.FieldPaymentStatus:
		return w.client.UpdatePaymentStatus(ctx, in.ResourceID, model.PaymentStatus(in.Value))
	default:
		return fmt.Errorf("unknown field %q: %w", in.Field, model.ErrInvalidValue)
	}
}

func (w *RESTWriter) Acknowledged() bool { return true }
