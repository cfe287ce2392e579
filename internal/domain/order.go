package domain

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает подтверждения.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён и готов к отгрузке.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ отгружен (конечный статус).
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCancelled — заказ отменён (конечный статус).
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusShipped || s == OrderStatusCancelled
}

// Order агрегирует заказ клиента.
//
// Products хранит ссылки на товары склада в порядке добавления: товар, заказанный
// дважды, встречается дважды. TotalPrice только накапливается в AddProduct.
type Order struct {
	ID         int64
	CustomerID int64
	Products   []*Product
	Status     OrderStatus
	TotalPrice float64
}

// NewOrder создаёт пустой заказ клиента в статусе pending.
func NewOrder(customerID int64) *Order {
	return &Order{
		CustomerID: customerID,
		Products:   make([]*Product, 0),
		Status:     OrderStatusPending,
	}
}

// AddProduct списывает quantity единиц товара и добавляет его в заказ.
// При нехватке остатка ни товар, ни заказ не изменяются.
func (o *Order) AddProduct(product *Product, quantity int) error {
	if product.Quantity < quantity {
		return InsufficientStockError(product.Name)
	}
	product.Quantity -= quantity
	o.Products = append(o.Products, product)
	o.TotalPrice += product.Price * float64(quantity)
	return nil
}

// Confirm переводит заказ из pending в confirmed.
func (o *Order) Confirm() error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotPending
	}
	o.Status = OrderStatusConfirmed
	return nil
}

// Ship переводит заказ из confirmed в shipped.
func (o *Order) Ship() error {
	if o.Status != OrderStatusConfirmed {
		return ErrOrderNotConfirmed
	}
	o.Status = OrderStatusShipped
	return nil
}

// Cancel отменяет заказ и возвращает на склад по одной единице за каждую позицию.
// Возврат не зависит от количества, списанного в AddProduct.
func (o *Order) Cancel() error {
	if o.Status.Terminal() {
		return ErrOrderNotCancellable
	}
	o.Status = OrderStatusCancelled
	for _, product := range o.Products {
		product.Quantity++
	}
	return nil
}

// ProductIDs возвращает идентификаторы товаров в порядке позиций заказа.
func (o *Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Products))
	for _, p := range o.Products {
		ids = append(ids, p.ID)
	}
	return ids
}
