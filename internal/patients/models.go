package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the minimal patient record the waterfall engine needs: who to
// text and whether they may be texted. Full patient charts live in the
// hosted practice-management system.
type Patient struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	FirstName string    `json:"first_name" gorm:"not null"`
	LastName  string    `json:"last_name" gorm:"not null"`
	Phone     string    `json:"phone" gorm:"not null;index"`
	Email     string    `json:"email"`
	SMSOptOut bool      `json:"sms_opt_out" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the patient's display name
func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
