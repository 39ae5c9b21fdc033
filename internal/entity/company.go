package entity

// Company is a read-only reference from the external payroll database, used
// to validate and normalize a job's target company before creation.
type Company struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
