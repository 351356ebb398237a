package domain

import "context"

// OrderRepository описывает требования к хранилищу агрегата заказа.
// Операции работают только с агрегатом целиком, позиции отдельно не адресуются.
type OrderRepository interface {
	// Save сохраняет заголовок и все позиции одной транзакцией.
	// Для заказа без ID выполняет вставку и присваивает выданный идентификатор,
	// иначе обновляет существующую запись (ErrOrderNotFound, если её нет).
	Save(ctx context.Context, order *Order) error
	// FindByID возвращает полностью восстановленный агрегат; found=false, если его нет.
	FindByID(ctx context.Context, id OrderID) (order *Order, found bool, err error)
	// FindByCustomer возвращает заказы клиента по возрастанию created_at.
	FindByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	// Remove удаляет заказ вместе со всеми позициями.
	Remove(ctx context.Context, order *Order) error
}
