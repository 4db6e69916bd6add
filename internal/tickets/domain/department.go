package domain

// Department class of a ticket in the ticketing system.
type DepartmentClass int

const (
	DepartmentIgnored DepartmentClass = iota
	DepartmentDispatch
	DepartmentTurnup
	DepartmentProject
	DepartmentOther
)

// DispatchDepartments are the departments whose tickets count as dispatches.
var DispatchDepartments = []string{"FST Accounting", "Dispatch", "Pro Services"}

// TurnupDepartments are the departments whose tickets count as turnups.
var TurnupDepartments = []string{"Turnups"}

// ProjectDepartment holds project management tickets linked to a chain.
const ProjectDepartment = "Turn up Projects"

// IgnoredDepartments never take part in a chain.
var IgnoredDepartments = []string{"Add to NPM", "Helpdesk Tier 1", "Helpdesk Tier 2", "Helpdesk Tier 3", "Engineering"}

// ExcludedTicketType marks turnups handled by third parties.
const ExcludedTicketType = "3rd Party Turnup"

// ClassifyDepartment maps a department and ticket type to its class.
func ClassifyDepartment(department, ticketType string) DepartmentClass {
	if ticketType == ExcludedTicketType || contains(IgnoredDepartments, department) {
		return DepartmentIgnored
	}
	switch {
	case contains(DispatchDepartments, department):
		return DepartmentDispatch
	case contains(TurnupDepartments, department):
		return DepartmentTurnup
	case department == ProjectDepartment:
		return DepartmentProject
	default:
		return DepartmentOther
	}
}

// Category returns the ticket category for analyzable classes.
func (d DepartmentClass) Category() (Category, bool) {
	switch d {
	case DepartmentDispatch:
		return CategoryDispatch, true
	case DepartmentTurnup:
		return CategoryTurnup, true
	default:
		return 0, false
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
