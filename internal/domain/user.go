package domain

import "strings"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole нормализует userType из приложения; неизвестные значения считаются пациентом.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDoctor:
		return RoleDoctor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RolePatient
	}
}

// CanHost reports whether the role may admit, remove and moderate participants.
func (r Role) CanHost() bool {
	return r == RoleDoctor || r == RoleAdmin
}

type User struct {
	ID          string
	DisplayName string
	Role        Role
}
