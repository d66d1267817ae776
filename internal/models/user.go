package models

import "crypto/subtle"

// BasicUser is a registered user and its secret token.
type BasicUser struct {
	UserID string `json:"user_id"`
	Token  string `json:"user_token"`
}

// AuthenticatedUser proves the caller presented the user's token.
// Every mutating operation requires one.
type AuthenticatedUser struct {
	UserID string
}

// Authenticate returns a capability for the user when token matches, nil otherwise.
func (u BasicUser) Authenticate(token string) *AuthenticatedUser {
	if subtle.ConstantTimeCompare([]byte(u.Token), []byte(token)) != 1 {
		return nil
	}
	return &AuthenticatedUser{UserID: u.UserID}
}

// String keeps the token out of logs.
func (u BasicUser) String() string {
	return "BasicUser{" + u.UserID + "}"
}
