package domain

import (
	"errors"
	"fmt"
)

// Категории ошибок. Конкретные ошибки ниже оборачивают одну из них,
// поэтому вызывающий код проверяет категорию через errors.Is.
var (
	// ErrInvalidArgument означает некорректные входные данные при создании или изменении агрегата.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState означает, что операция недопустима в текущем статусе заказа.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound означает, что агрегата с указанным идентификатором нет.
	ErrNotFound = errors.New("not found")
	// ErrPersistence обозначает любую ошибку хранилища; транзакция к этому моменту уже откатена.
	ErrPersistence = errors.New("persistence failure")
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = newKindError(ErrInvalidArgument, "customer_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = newKindError(ErrInvalidArgument, "item quantity must be greater than zero")
	// Ошибка, если цена позиции не положительная.
	ErrItemPriceInvalid = newKindError(ErrInvalidArgument, "item unit price must be greater than zero")
	// Ошибка неположительного идентификатора заказа.
	ErrOrderIDInvalid = newKindError(ErrInvalidArgument, "order id must be positive")
	// ErrOrderNotDraft означает, что заказ уже подтверждён и изменять его нельзя.
	ErrOrderNotDraft = newKindError(ErrInvalidState, "order is not in DRAFT status")
	// ErrOrderHasNoItems запрещает подтверждение заказа без позиций.
	ErrOrderHasNoItems = newKindError(ErrInvalidState, "order must contain at least one item to be confirmed")
	// ErrIdentityAssigned отклоняет повторную попытку присвоить идентификатор.
	ErrIdentityAssigned = newKindError(ErrInvalidState, "order identity is already assigned")
	// ErrIdentityAssignerUnissued отклоняет использование нулевого IdentityAssigner.
	ErrIdentityAssignerUnissued = newKindError(ErrInvalidState, "identity assigner was not issued")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newKindError(ErrNotFound, "order not found")
)

type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// PersistenceError описывает сбой хранилища без деталей движка БД.
// Исходная причина логируется адаптером и наружу не передаётся.
type PersistenceError struct {
	Op string
}

// NewPersistenceError создаёт ошибку категории ErrPersistence для операции op.
func NewPersistenceError(op string) error {
	return &PersistenceError{Op: op}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPersistence.Error(), e.Op)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// IsInvalidArgument проверяет, относится ли ошибка к некорректным входным данным.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsInvalidState проверяет, нарушает ли операция жизненный цикл заказа.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsNotFound проверяет, является ли ошибка отсутствием агрегата.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPersistence проверяет, является ли ошибка сбоем хранилища.
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }

// IsDomainRejection сообщает, является ли err бизнес-отказом, повтор которого не изменит результат.
func IsDomainRejection(err error) bool {
	return IsInvalidArgument(err) || IsInvalidState(err) || IsNotFound(err)
}
