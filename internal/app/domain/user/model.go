// Package user defines registered users of the distribution API.
package user

import (
	"strings"
	"time"
)

// User is a registered account. Admin users (admin == true) see every
// client's products; everyone else is scoped to their own client.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	Client    string    `json:"client" bson:"client"`
	Admin     bool      `json:"admin" bson:"admin"`
	CreatedAt time.Time `json:"ts" bson:"ts"`
}

// Domain returns the email's domain part, lowercased.
func Domain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
