package models

// UserRole — роль из claims токена. Аутентификация внешняя (токены выпускает
// основной сервис), здесь роль нужна только для авторизации админ-ручек.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RolePlayer UserRole = "player"
)
