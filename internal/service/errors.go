// errors.go — ошибки бизнес-логики сервисного слоя.
// Обработчики сопоставляют их с HTTP-статусами через errors.Is.
package service

import "errors"

var (
	// ErrDuplicate — у владельца уже есть корневой документ с таким содержимым.
	ErrDuplicate = errors.New("документ уже зарегистрирован")
	// ErrNotFound — документ или цепочка не найдены.
	ErrNotFound = errors.New("документ не найден")
	// ErrMissingTarget — для обновления не указана цепочка.
	ErrMissingTarget = errors.New("не указан документ для обновления")
	// ErrInvalidMode — неизвестный режим регистрации.
	ErrInvalidMode = errors.New("недопустимый режим загрузки: допустимые значения — new, update")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrInvalidSecret — неверный пароль доступа к документу.
	ErrInvalidSecret = errors.New("неверный пароль документа")
	// ErrConflict — версия цепочки занята параллельным обновлением.
	ErrConflict = errors.New("конфликт версий — повторите загрузку")
	// ErrStorage — объектное хранилище недоступно.
	ErrStorage = errors.New("объектное хранилище недоступно")
	// ErrUnauthenticated — запрос без действительного токена.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)
