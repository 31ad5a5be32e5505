package identity

import "errors"

var (
	ErrorUserNotFound = errors.New("user_not_found")
)

// RoleProvider resolves the roles held by a user at decision time; the
// engine treats this as a synchronous lookup against an external system
type RoleProvider interface {
	GetRoles(userId string) ([]string, error)
}
