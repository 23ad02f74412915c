// Package product defines the Product aggregate and its embedded
// Compilation entries.
package product

import (
	"strings"
	"time"
)

// Platforms recognised by the distribution pipeline. The platform decides
// the artifact extension and, for iOS, the manifest-based install flow.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Compilation is a versioned build artifact's metadata, embedded in a
// Product. It is not independently addressable in storage; all mutation goes
// through the aggregate or a targeted store update.
type Compilation struct {
	ID              string `json:"compilationId" bson:"compilationId"`
	Version         string `json:"version" bson:"version"`
	Platform        string `json:"platform" bson:"platform"`
	PlatformVersion string `json:"platformVersion" bson:"platformVersion"`
	Environment     string `json:"environment" bson:"environment"`
	Public          bool   `json:"public" bson:"public"`
	Permission      string `json:"permission" bson:"permission"`
	BundleID        string `json:"bundleId,omitempty" bson:"bundleId,omitempty"`
	FilePath        string `json:"filePath" bson:"filePath"`
	Uploaded        bool   `json:"uploaded" bson:"uploaded"`
	// UploadedAt is assigned when the entry is created, not when the binary
	// upload is acknowledged. Listings sort on it.
	UploadedAt  time.Time `json:"uploaded_at" bson:"uploaded_at"`
	Filename    string    `json:"filename,omitempty" bson:"filename,omitempty"`
	PublicToken string    `json:"publicToken" bson:"publicToken"`

	// Derived, never persisted. Populated by urls.DecorateCompilation.
	DownloadURL string `json:"downloadUrl,omitempty" bson:"-"`
	PublicURL   string `json:"publicUrl,omitempty" bson:"-"`
}

// UniqueKey identifies a compilation within one product: no two entries may
// share the same (platform, platformVersion, version) triple.
type UniqueKey struct {
	Platform        string
	PlatformVersion string
	Version         string
}

// Key returns the compilation's uniqueness key.
func (c Compilation) Key() UniqueKey {
	return UniqueKey{Platform: c.Platform, PlatformVersion: c.PlatformVersion, Version: c.Version}
}

// IsIOS reports whether the compilation targets the iOS install flow.
func (c Compilation) IsIOS() bool {
	return strings.EqualFold(c.Platform, PlatformIOS)
}

// Product is the aggregate root for a distributable application, scoped to
// one client. The (name, client) pair is unique across all products.
type Product struct {
	ID            string        `json:"id" bson:"_id"`
	Name          string        `json:"name" bson:"name"`
	Description   string        `json:"description" bson:"description"`
	Client        string        `json:"client" bson:"client"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	Icon          []byte        `json:"-" bson:"icon,omitempty"`
	Public        bool          `json:"public" bson:"public"`
	Compilations  []Compilation `json:"compilations" bson:"compilations"`
	Subscriptions []string      `json:"subscriptions,omitempty" bson:"subscriptions"`

	// Derived, never persisted.
	IconURL    string `json:"iconUrl,omitempty" bson:"-"`
	Subscribed bool   `json:"subscribed,omitempty" bson:"-"`
}

// Compilation returns the embedded entry with the given ID.
func (p *Product) Compilation(compilationID string) (Compilation, bool) {
	for _, c := range p.Compilations {
		if c.ID == compilationID {
			return c, true
		}
	}
	return Compilation{}, false
}

// HasKey reports whether any embedded entry already uses the key.
func (p *Product) HasKey(key UniqueKey) bool {
	for _, c := range p.Compilations {
		if c.Key() == key {
			return true
		}
	}
	return false
}

// AppendCompilation adds an entry, preserving the uniqueness invariant.
// It reports false when the entry's key is already taken.
func (p *Product) AppendCompilation(c Compilation) bool {
	if p.HasKey(c.Key()) {
		return false
	}
	p.Compilations = append(p.Compilations, c)
	return true
}

// RemoveCompilation drops the entry with the given ID, reporting whether an
// entry was removed. All other entries are left untouched.
func (p *Product) RemoveCompilation(compilationID string) bool {
	for i, c := range p.Compilations {
		if c.ID == compilationID {
			p.Compilations = append(p.Compilations[:i], p.Compilations[i+1:]...)
			return true
		}
	}
	return false
}

// IsSubscribed reports whether the user receives ack notifications.
func (p *Product) IsSubscribed(userID string) bool {
	for _, id := range p.Subscriptions {
		if id == userID {
			return true
		}
	}
	return false
}
