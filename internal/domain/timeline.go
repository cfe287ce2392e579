package domain

import "time"

// Типы событий жизненного цикла заказа.
const (
	TimelineOrderCreated   = "order.created"
	TimelineOrderConfirmed = "order.confirmed"
	TimelineOrderShipped   = "order.shipped"
	TimelineOrderCancelled = "order.cancelled"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  int64
	Type     string
	Reason   string
	Occurred time.Time
}
