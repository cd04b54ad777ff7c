package model

import "time"

// Caller — аутентифицированный пользователь запроса.
// Формируется из JWT claims в middleware.
type Caller struct {
	// ID — sub из JWT
	ID string
	// Email — адрес электронной почты из claims
	Email string
	// IsAdmin — администратор (claim is_admin или группа/роль)
	IsAdmin bool
}

// User — запись справочника пользователей.
// Хранится в таблице users, обновляется при каждом аутентифицированном запросе.
type User struct {
	ID         string
	Email      string
	IsAdmin    bool
	LastSeenAt time.Time
}
