package domain

import (
	"errors"
	"fmt"
)

// Виды доменных ошибок. Конкретные ошибки разворачиваются (errors.Unwrap) до одного из них,
// поэтому вызывающий код проверяет категорию через errors.Is.
var (
	// ErrValidation — нарушен инвариант сущности при создании.
	ErrValidation = errors.New("validation error")
	// ErrNotFound — запись с указанным идентификатором отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock — запрошенное количество превышает остаток на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidStateTransition — переход статуса заказа из текущего состояния запрещён.
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

var (
	// ErrQuantityNegative возвращается при создании товара с отрицательным остатком.
	ErrQuantityNegative = newKindError(ErrValidation, "quantity cannot be negative")
	// ErrPriceNotPositive возвращается при создании товара с ценой <= 0.
	ErrPriceNotPositive = newKindError(ErrValidation, "price must be positive")

	// ErrCustomerNotFound возвращается, если клиент не найден в репозитории.
	ErrCustomerNotFound = newKindError(ErrNotFound, "customer not found")
	// ErrProductNotFound возвращается, если товар не найден в репозитории.
	ErrProductNotFound = newKindError(ErrNotFound, "product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newKindError(ErrNotFound, "order not found")

	// ErrOrderNotPending — подтвердить можно только заказ в статусе pending.
	ErrOrderNotPending = newKindError(ErrInvalidStateTransition, "order can only be confirmed while pending")
	// ErrOrderNotConfirmed — отгрузить можно только подтверждённый заказ.
	ErrOrderNotConfirmed = newKindError(ErrInvalidStateTransition, "order can only be shipped after confirmation")
	// ErrOrderNotCancellable — отгруженный или уже отменённый заказ отменить нельзя.
	ErrOrderNotCancellable = newKindError(ErrInvalidStateTransition, "order cannot be cancelled")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// kindError — ошибка с точным текстом, относящаяся к одному из видов выше.
type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// InsufficientStockError сообщает, что товара не хватает для добавления в заказ.
func InsufficientStockError(productName string) error {
	return newKindError(ErrInsufficientStock, fmt.Sprintf("insufficient stock for %s", productName))
}

// ProductUnavailableError сообщает, что товар отсутствует или закончился на момент оформления заказа.
func ProductUnavailableError(productID int64) error {
	return newKindError(ErrInsufficientStock, fmt.Sprintf("product %d unavailable", productID))
}

// IsValidation проверяет, является ли ошибка нарушением инварианта сущности.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет, сообщает ли ошибка об отсутствующей записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientStock проверяет, связана ли ошибка с нехваткой товара.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsInvalidStateTransition проверяет, является ли ошибка запрещённым переходом статуса.
func IsInvalidStateTransition(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}
