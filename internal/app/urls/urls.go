// Package urls derives storage keys and API URLs from product and
// compilation state. BuildFilePath is the single source of truth for an
// artifact's object-storage key: the same inputs must always produce the
// same key, both when the upload is created and when the blob is later
// resolved for download or deletion.
package urls

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"

	"github.com/hangarhq/hangar/internal/app/domain/product"
)

const apiPrefix = "/api/v1"

// BuildFilePath computes the deterministic object-storage key for a
// compilation: client/product/platform/environment/product-environment-version
// plus the platform extension (.ipa for iOS, .apk otherwise).
func BuildFilePath(p product.Product, c product.Compilation) string {
	extension := ".apk"
	if c.IsIOS() {
		extension = ".ipa"
	}

	clientSlug := slug.Make(p.Client)
	productSlug := slug.Make(p.Name)
	platformSlug := slug.Make(c.Platform)
	environmentSlug := slug.Make(c.Environment)
	versionSlug := slug.Make(c.Version)

	return strings.Join([]string{
		clientSlug,
		productSlug,
		platformSlug,
		environmentSlug,
		productSlug + "-" + environmentSlug + "-" + versionSlug + extension,
	}, "/")
}

// Builder renders absolute API URLs for one deployment host.
type Builder struct {
	host string
}

// NewBuilder creates a Builder for the configured public host
// (e.g. https://hangar.example.com).
func NewBuilder(host string) *Builder {
	return &Builder{host: strings.TrimRight(host, "/")}
}

// CompilationURL returns the API URL of one compilation resource.
func (b *Builder) CompilationURL(p product.Product, c product.Compilation) string {
	return fmt.Sprintf("%s%s/product/%s/compilation/%s", b.host, apiPrefix, p.ID, c.ID)
}

// DownloadURL returns the authenticated download endpoint for a compilation.
func (b *Builder) DownloadURL(p product.Product, c product.Compilation) string {
	return b.CompilationURL(p, c) + "/download"
}

// PlistURL returns the manifest endpoint used by the iOS install flow.
func (b *Builder) PlistURL(p product.Product, c product.Compilation) string {
	return b.CompilationURL(p, c) + "/plist"
}

// PublicURL returns the tokenised download URL usable without a session.
func (b *Builder) PublicURL(p product.Product, c product.Compilation) string {
	return b.DownloadURL(p, c) + "?publicToken=" + c.PublicToken
}

// IconURL returns the relative image URL, or "" when no icon is stored.
func (b *Builder) IconURL(p product.Product) string {
	if len(p.Icon) == 0 {
		return ""
	}
	return "/images/" + p.ID + ".png"
}

// DecorateCompilation fills the compilation's derived URL fields.
func (b *Builder) DecorateCompilation(p product.Product, c *product.Compilation) {
	c.DownloadURL = b.DownloadURL(p, *c)
	c.PublicURL = b.PublicURL(p, *c)
}

// DecorateProduct fills the product's derived fields and those of every
// embedded compilation.
func (b *Builder) DecorateProduct(p *product.Product) {
	p.IconURL = b.IconURL(*p)
	for i := range p.Compilations {
		b.DecorateCompilation(*p, &p.Compilations[i])
	}
}
