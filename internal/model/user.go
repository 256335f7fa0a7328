// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Role constants for user authorization.
const (
	RoleCustomer   = "customer"
	RoleModelOwner = "modelOwner"
	RoleAdmin      = "admin"
)

// SelfServiceRoles can be requested through the public registration endpoint.
// Admin is granted out of band.
var SelfServiceRoles = []string{RoleCustomer, RoleModelOwner}

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleCustomer, RoleModelOwner, RoleAdmin}

// User is identified by a wallet address, an email, or both.
type User struct {
	ID           string    `json:"id"`
	Wallet       *string   `json:"wallet,omitempty"`
	Email        *string   `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasRole checks if the user holds a role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Identity returns the wallet if present, otherwise the email.
func (u *User) Identity() string {
	if u.Wallet != nil {
		return *u.Wallet
	}
	if u.Email != nil {
		return *u.Email
	}
	return ""
}

// MergeRoles returns the union of two role sets, preserving first-seen order.
func MergeRoles(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	for _, r := range existing {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	for _, r := range added {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// UserStats summarizes a user's rentals.
type UserStats struct {
	TotalRentals  int      `json:"totalRentals"`
	ActiveRentals int      `json:"activeRentals"`
	PaidRentals   int      `json:"paidRentals"`
	ModelIDs      []string `json:"modelIds"`
}
