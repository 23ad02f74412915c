// Package manifest renders the iOS over-the-air installation manifest
// (property list) for an uploaded compilation.
package manifest

import (
	"fmt"

	"howett.net/plist"

	"github.com/hangarhq/hangar/internal/app/domain/product"
)

type asset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type metadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

type item struct {
	Assets   []asset  `plist:"assets"`
	Metadata metadata `plist:"metadata"`
}

type document struct {
	Items []item `plist:"items"`
}

// Build renders the installer manifest embedding the signed package URL.
// Missing inputs are programming-contract violations, not user errors, so
// they panic rather than return.
func Build(p product.Product, c product.Compilation, signedURL string) []byte {
	assertf(p.ID != "", "missing product information")
	assertf(p.Name != "", "missing product name")
	assertf(c.ID != "", "missing compilation information")
	assertf(c.Version != "", "missing compilation version")
	assertf(signedURL != "", "missing compilation url")

	doc := document{
		Items: []item{{
			Assets: []asset{{
				Kind: "software-package",
				URL:  signedURL,
			}},
			Metadata: metadata{
				BundleIdentifier: c.BundleID,
				BundleVersion:    c.Version,
				Kind:             "software",
				Title:            p.Name,
			},
		}},
	}

	out, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		panic(fmt.Sprintf("manifest: marshal plist: %v", err))
	}
	return out
}

// FileName returns the attachment name served with the manifest.
func FileName(c product.Compilation) string {
	return c.ID + ".plist"
}

func assertf(ok bool, message string) {
	if !ok {
		panic("manifest: " + message)
	}
}
