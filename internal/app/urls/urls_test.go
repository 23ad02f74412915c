package urls

import (
	"testing"

	"github.com/hangarhq/hangar/internal/app/domain/product"
)

func TestBuildFilePath(t *testing.T) {
	p := product.Product{Name: "Launch Pad", Client: "Acme Corp"}

	android := product.Compilation{
		Platform:    "android",
		Environment: "staging",
		Version:     "1.2.0",
	}
	got := BuildFilePath(p, android)
	want := "acme-corp/launch-pad/android/staging/launch-pad-staging-1-2-0.apk"
	if got != want {
		t.Fatalf("android path = %q, want %q", got, want)
	}

	ios := android
	ios.Platform = "ios"
	if got := BuildFilePath(p, ios); got != "acme-corp/launch-pad/ios/staging/launch-pad-staging-1-2-0.ipa" {
		t.Fatalf("ios path = %q", got)
	}

	// The key is the storage identity of the artifact; the same inputs
	// must always resolve to the same key.
	if BuildFilePath(p, android) != BuildFilePath(p, android) {
		t.Fatalf("path construction must be deterministic")
	}
}

func TestBuilderURLs(t *testing.T) {
	b := NewBuilder("https://hangar.example.com/")
	p := product.Product{ID: "p1", Name: "Launchpad"}
	c := product.Compilation{ID: "c1", PublicToken: "tok"}

	if got := b.DownloadURL(p, c); got != "https://hangar.example.com/api/v1/product/p1/compilation/c1/download" {
		t.Fatalf("download url = %q", got)
	}
	if got := b.PlistURL(p, c); got != "https://hangar.example.com/api/v1/product/p1/compilation/c1/plist" {
		t.Fatalf("plist url = %q", got)
	}
	if got := b.PublicURL(p, c); got != b.DownloadURL(p, c)+"?publicToken=tok" {
		t.Fatalf("public url = %q", got)
	}
}

func TestDecorateProduct(t *testing.T) {
	b := NewBuilder("https://hangar.example.com")
	p := product.Product{
		ID:   "p1",
		Name: "Launchpad",
		Icon: []byte{1},
		Compilations: []product.Compilation{
			{ID: "c1", PublicToken: "tok"},
		},
	}

	b.DecorateProduct(&p)
	if p.IconURL != "/images/p1.png" {
		t.Fatalf("icon url = %q", p.IconURL)
	}
	if p.Compilations[0].DownloadURL == "" || p.Compilations[0].PublicURL == "" {
		t.Fatalf("expected compilation urls populated")
	}

	p.Icon = nil
	b.DecorateProduct(&p)
	if p.IconURL != "" {
		t.Fatalf("expected empty icon url without stored icon")
	}
}
