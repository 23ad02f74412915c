// Package feature defines the tracker service's feature records.
package feature

import "time"

// Feature is a tracked capability scoped to a blueprint. Names are unique
// per blueprint, compared case-insensitively.
type Feature struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	BlueprintID string    `json:"blueprintId" bson:"blueprintId"`
	Context     string    `json:"context,omitempty" bson:"context,omitempty"`
	Goal        string    `json:"goal,omitempty" bson:"goal,omitempty"`
	Tags        []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}
