package patients

// CreatePatientRequest registers a patient contact record
type CreatePatientRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone" binding:"required,e164"`
	Email     string `json:"email" binding:"omitempty,email"`
}
