package models

import (
	"strings"
	"unicode/utf8"
)

// User represents a chat participant as the REST backend describes it
type User struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// DefaultDisplayName is used when the server omits a display name
const DefaultDisplayName = "User"

// GetDisplayName returns the display name if set, otherwise the username
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Initial returns the upper-cased first letter of the display name (avatar)
func (u *User) Initial() string {
	name := u.GetDisplayName()
	if name == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return strings.ToUpper(string(r))
}

// FallbackUsername generates a username for users the server returned without one
func FallbackUsername() string {
	return "user_" + RandomBase36(9)
}
