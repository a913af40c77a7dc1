// Package auth serves login, registration and session introspection against
// the identity provider.
package auth

import (
	"net/mail"
	"strings"
)

const profileTable = "users"

// DefaultRole is assigned to registrations that do not name one.
const DefaultRole = "customer"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	StaffCode *string `json:"staff_code"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Name      string  `json:"name"`
	StaffCode *string `json:"staff_code"`
	Role      string  `json:"role"`
}

// UserInfo is the user part of an auth response.
type UserInfo struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Avatar    *string `json:"avatar"`
	StaffCode *string `json:"staff_code"`
}

// Response is returned by login and register.
type Response struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	User        UserInfo `json:"user"`
}

// Profile is the subset of a users row the auth endpoints read and write.
type Profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Avatar    *string `json:"avatar,omitempty"`
	StaffCode *string `json:"staff_code,omitempty"`
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func (r *LoginRequest) validate() string {
	r.Email = strings.TrimSpace(r.Email)
	switch {
	case !validEmail(r.Email):
		return "a valid email is required"
	case r.Password == "":
		return "password is required"
	}
	return ""
}

func (r *RegisterRequest) validate() string {
	r.Email = strings.TrimSpace(r.Email)
	if r.Role == "" {
		r.Role = DefaultRole
	}
	switch {
	case !validEmail(r.Email):
		return "a valid email is required"
	case r.Password == "":
		return "password is required"
	case strings.TrimSpace(r.Name) == "":
		return "name is required"
	}
	return ""
}

func userInfo(id, email string, p *Profile) UserInfo {
	info := UserInfo{ID: id, Email: email, Role: DefaultRole}
	if p != nil {
		info.Name = p.Name
		if p.Role != "" {
			info.Role = p.Role
		}
		info.Avatar = p.Avatar
		info.StaffCode = p.StaffCode
	}
	return info
}
