package domain

// IdentityAssigner даёт право присвоить суррогатный идентификатор только что вставленному заказу.
// У Order нет публичного сеттера ID. Адаптеры хранилища получают assigner при создании
// и только через него записывают идентификатор, выданный базой.
type IdentityAssigner struct {
	issued bool
}

// NewIdentityAssigner выдаёт assigner. Вызывается только конструкторами репозиториев.
// Экспорт нужен, потому что адаптеры живут в пакетах internal/storage/*; компилятор
// это ограничение не проверяет, вызовы вне storage отсекаются на ревью.
func NewIdentityAssigner() IdentityAssigner {
	return IdentityAssigner{issued: true}
}

// Assign записывает id в заказ. Идентификатор присваивается ровно один раз.
func (a IdentityAssigner) Assign(order *Order, id OrderID) error {
	if !a.issued {
		return ErrIdentityAssignerUnissued
	}
	if id <= 0 {
		return ErrOrderIDInvalid
	}
	if order.IsPersisted() {
		return ErrIdentityAssigned
	}

	order.id = id
	return nil
}
