// Package users serves user profiles and their per-user listings.
package users

const table = "users"

// User is a row of users.
type User struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Phone        *string `json:"phone"`
	Location     *string `json:"location"`
	Avatar       *string `json:"avatar"`
	Role         string  `json:"role"`
	StaffCode    *string `json:"staff_code,omitempty"`
	ReferralCode *string `json:"referral_code"`
	ReferredBy   *string `json:"referred_by"`
	IsActive     *bool   `json:"is_active,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// UserUpdate is a partial profile update; nil fields are left untouched.
type UserUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Location *string `json:"location"`
	Avatar   *string `json:"avatar"`
}

func (u *UserUpdate) changes() map[string]interface{} {
	out := make(map[string]interface{})
	set := func(col string, v *string) {
		if v != nil {
			out[col] = *v
		}
	}
	set("name", u.Name)
	set("email", u.Email)
	set("phone", u.Phone)
	set("location", u.Location)
	set("avatar", u.Avatar)
	return out
}
