package auth

import "fmt"

// Department is the closed set of CRM departments. Permissions are granted
// per department, never per individual user.
type Department string

const (
	DepartmentCommercial Department = "commercial"
	DepartmentSupport    Department = "support"
	DepartmentManagement Department = "management"
)

// Departments lists every known department in a stable order.
var Departments = []Department{
	DepartmentCommercial,
	DepartmentSupport,
	DepartmentManagement,
}

// ParseDepartment maps a stored or transmitted string onto the enumeration.
func ParseDepartment(s string) (Department, error) {
	switch Department(s) {
	case DepartmentCommercial, DepartmentSupport, DepartmentManagement:
		return Department(s), nil
	}
	return "", fmt.Errorf("%w: unknown department %q", ErrInvalidInput, s)
}

// Valid reports whether d is a member of the closed set.
func (d Department) Valid() bool {
	_, err := ParseDepartment(string(d))
	return err == nil
}

func (d Department) String() string { return string(d) }
