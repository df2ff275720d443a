package services

import "atelier-backend/models"

// Actor is the explicit request context of a workflow call.
// KioskEmployeeID is set when a shared kiosk terminal supplies the technician identity.
type Actor struct {
	UserID          string
	Name            string
	Role            string
	EmployeeID      *uint
	KioskEmployeeID *uint
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// IsManager is true for managers and admins.
func (a Actor) IsManager() bool {
	return a.Role == models.RoleManager || a.Role == models.RoleAdmin
}

func (a Actor) IsTechnician() bool { return a.Role == models.RoleTechnician }

// WorkingEmployee is the technician this actor works as: the kiosk identity first.
func (a Actor) WorkingEmployee() *uint {
	if a.KioskEmployeeID != nil {
		return a.KioskEmployeeID
	}
	return a.EmployeeID
}
