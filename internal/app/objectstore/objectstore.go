// Package objectstore abstracts the blob-storage provider holding the
// binary build artifacts. The service never proxies artifact bytes; it only
// hands out signed, time-limited URLs.
package objectstore

import "context"

// SignedURL is a time-limited, credential-embedded URL granting direct
// access to one object.
type SignedURL struct {
	URL string `json:"url"`
}

// UploadRequest describes the upload destination to sign.
type UploadRequest struct {
	// File is the object key, as produced by urls.BuildFilePath.
	File string
	// Public marks the object world-readable once uploaded.
	Public bool
	// ContentType defaults to binary/octet-stream.
	ContentType string
}

// Store is the provider contract consumed by the compilation lifecycle.
type Store interface {
	// CreateUpload issues a signed PUT URL for the object key.
	CreateUpload(ctx context.Context, req UploadRequest) (SignedURL, error)
	// GetDownloadURL issues a signed GET URL. Providers override the
	// response content type for .apk files so devices install rather
	// than display them.
	GetDownloadURL(ctx context.Context, file string) (SignedURL, error)
	// RemoveFile deletes the object. Removing an absent object is not an
	// error.
	RemoveFile(ctx context.Context, file string) error
	// FileExists reports whether the object is present. Provider
	// not-found answers map to (false, nil), not an error.
	FileExists(ctx context.Context, file string) (bool, error)
}
