package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// AggregateTypeOrder — тип агрегата для событий заказа в outbox.
const AggregateTypeOrder = "order"

// OrderEvent — полезная нагрузка события заказа в outbox.
type OrderEvent struct {
	OrderID    int64     `json:"order_id"`
	CustomerID int64     `json:"customer_id"`
	Status     string    `json:"status"`
	TotalPrice float64   `json:"total_price"`
	ProductIDs []int64   `json:"product_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *Service) recordEvent(ctx context.Context, order *domain.Order, eventType string) error {
	occurred := s.now()

	if s.timeline != nil {
		err := s.timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   string(order.Status),
			Occurred: occurred,
		})
		if err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}
	}

	if s.outbox == nil {
		return nil
	}

	payload, err := json.Marshal(OrderEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		TotalPrice: order.TotalPrice,
		ProductIDs: order.ProductIDs(),
		OccurredAt: occurred,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}
