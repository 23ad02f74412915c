// Package client defines the tenant owning products and users.
package client

import "time"

// Client is a tenant. Products and users reference it by name, so renames
// cascade through both collections.
type Client struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Envs      []string  `json:"envs" bson:"envs"`
	Domains   []string  `json:"domains" bson:"domains"`
	Whitelist []string  `json:"whitelist" bson:"whitelist"`
	CreatedAt time.Time `json:"ts" bson:"ts"`
}

// AllowsDomain reports whether the client accepts signups from the domain.
func (c Client) AllowsDomain(domain string) bool {
	for _, d := range c.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Whitelists reports whether the email is explicitly allowed.
func (c Client) Whitelists(email string) bool {
	for _, e := range c.Whitelist {
		if e == email {
			return true
		}
	}
	return false
}
