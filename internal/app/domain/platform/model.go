// Package platform defines the catalog of supported target platforms.
package platform

import "time"

// Platform names a supported target and the OS versions builds may declare.
type Platform struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Versions  []string  `json:"platformVersions" bson:"platformVersions"`
	CreatedAt time.Time `json:"ts" bson:"ts"`
}
