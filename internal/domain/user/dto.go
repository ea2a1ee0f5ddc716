package user

import (
	"time"

	"github.com/google/uuid"
)

// UpdatePhoneRequest sets or clears (empty string) the relay phone number
type UpdatePhoneRequest struct {
	PhoneNumber string `json:"phone_number" validate:"omitempty,phone"`
}

type ProfileResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionResponse is returned at session start
type SessionResponse struct {
	Profile      ProfileResponse `json:"profile"`
	TotalCredits int64           `json:"total_credits"`
	Renewed      int             `json:"renewed"`
	Expired      int             `json:"expired"`
}

func ProfileFromEntity(u *User) ProfileResponse {
	resp := ProfileResponse{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
	if u.HasPhone() {
		resp.PhoneNumber = &u.PhoneNumber.String
	}
	return resp
}
