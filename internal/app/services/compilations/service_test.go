package compilations

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
	objectmemory "github.com/hangarhq/hangar/internal/app/objectstore/memory"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/app/storage/memory"
	"github.com/hangarhq/hangar/internal/app/urls"
	"github.com/hangarhq/hangar/internal/errors"
)

type captureNotifier struct {
	identities []string
	fail       bool
}

func (n *captureNotifier) SendCompilationReady(_ context.Context, identities []string, _ product.Product, _ product.Compilation) error {
	if n.fail {
		return stderrors.New("gateway unreachable")
	}
	n.identities = append([]string(nil), identities...)
	return nil
}

func (n *captureNotifier) RegisterIdentity(context.Context, user.User) error { return nil }

func newTestService(t *testing.T) (*Service, *memory.Store, *objectmemory.Store, *captureNotifier) {
	t.Helper()
	store := memory.New()
	blobs := objectmemory.New()
	notifier := &captureNotifier{}
	svc := NewService(store, blobs, notifier, urls.NewBuilder("https://hangar.example.com"), nil)
	return svc, store, blobs, notifier
}

func seedProduct(t *testing.T, store *memory.Store) product.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), product.Product{
		Name:          "Launchpad",
		Client:        "Acme",
		Subscriptions: []string{"u-1", "u-2"},
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func androidInput() CreateInput {
	return CreateInput{
		Version:         "1.2.0",
		Platform:        "android",
		PlatformVersion: "14",
		Environment:     "staging",
	}
}

func TestCreateIssuesUploadURL(t *testing.T) {
	svc, store, blobs, _ := newTestService(t)
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.CompilationID == "" {
		t.Fatalf("expected compilation id to be generated")
	}
	if result.URL == "" {
		t.Fatalf("expected signed upload url")
	}

	uploads := blobs.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload destination, got %d", len(uploads))
	}
	want := "acme/launchpad/android/staging/launchpad-staging-1-2-0.apk"
	if uploads[0] != want {
		t.Fatalf("file path = %q, want %q", uploads[0], want)
	}

	stored, err := store.GetProduct(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	c, ok := stored.Compilation(result.CompilationID)
	if !ok {
		t.Fatalf("compilation not persisted on product")
	}
	if c.Uploaded {
		t.Fatalf("new compilation must not be marked uploaded")
	}
	if c.UploadedAt.IsZero() {
		t.Fatalf("uploaded_at must be stamped at creation")
	}
	if c.PublicToken == "" {
		t.Fatalf("public token must be generated")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	for _, tc := range []struct {
		name  string
		strip func(*CreateInput)
	}{
		{"version", func(in *CreateInput) { in.Version = "" }},
		{"platform", func(in *CreateInput) { in.Platform = "" }},
		{"platformVersion", func(in *CreateInput) { in.PlatformVersion = "" }},
		{"environment", func(in *CreateInput) { in.Environment = "" }},
	} {
		in := androidInput()
		tc.strip(&in)
		_, err := svc.Create(context.Background(), p.ID, in)
		se := errors.GetServiceError(err)
		if se == nil || se.Code != errors.CodeBadRequest {
			t.Fatalf("missing %s: expected BadRequest, got %v", tc.name, err)
		}
	}
}

func TestCreateMissingProduct(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "nope", androidInput())
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if se.Message != "Product not found" {
		t.Fatalf("message = %q", se.Message)
	}
}

func TestCreateDuplicateVersionConflict(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	if _, err := svc.Create(context.Background(), p.ID, androidInput()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), p.ID, androidInput())
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeConflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if se.Message != "A compilation with the provided version and platform already exists" {
		t.Fatalf("message = %q", se.Message)
	}

	// A different platform version of the same release is fine.
	in := androidInput()
	in.PlatformVersion = "13"
	if _, err := svc.Create(context.Background(), p.ID, in); err != nil {
		t.Fatalf("create with different platformVersion: %v", err)
	}
}

// failingProductStore breaks UpdateProduct to exercise the compensating
// cleanup after a persist failure.
type failingProductStore struct {
	storage.ProductStore
}

func (s failingProductStore) UpdateProduct(context.Context, product.Product) (product.Product, error) {
	return product.Product{}, stderrors.New("write concern failure")
}

func TestCreatePersistFailureCleansOrphan(t *testing.T) {
	store := memory.New()
	blobs := objectmemory.New()
	svc := NewService(failingProductStore{store}, blobs, &captureNotifier{}, urls.NewBuilder("https://hangar.example.com"), nil)
	p := seedProduct(t, store)

	// Simulate the caller pushing the binary before persistence fails.
	file := "acme/launchpad/android/staging/launchpad-staging-1-2-0.apk"
	blobs.Put(file)

	_, err := svc.Create(context.Background(), p.ID, androidInput())
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeBadRequest {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if se.Message != "Could not create compilation" {
		t.Fatalf("message = %q", se.Message)
	}

	removals := blobs.Removals()
	if len(removals) != 1 || removals[0] != file {
		t.Fatalf("expected orphaned object removal of %q, got %v", file, removals)
	}
}

func TestDeleteRemovesBlobBeforeMetadata(t *testing.T) {
	svc, store, blobs, _ := newTestService(t)
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	file := blobs.Uploads()[0]
	blobs.Put(file)

	updated, err := svc.Delete(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(updated.Compilations) != 0 {
		t.Fatalf("expected compilations removed, got %d", len(updated.Compilations))
	}
	if removals := blobs.Removals(); len(removals) != 1 || removals[0] != file {
		t.Fatalf("expected blob removal of %q, got %v", file, removals)
	}

	_, err = svc.Delete(context.Background(), p.ID, result.CompilationID)
	if se := errors.GetServiceError(err); se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("deleting twice: expected NotFound, got %v", err)
	}
}

func TestUpdateReissuesSameKey(t *testing.T) {
	svc, store, blobs, _ := newTestService(t)
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	signed, err := svc.Update(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if signed.URL == "" {
		t.Fatalf("expected signed upload url")
	}

	uploads := blobs.Uploads()
	if len(uploads) != 2 {
		t.Fatalf("expected 2 issued uploads, got %d", len(uploads))
	}
	if uploads[0] != uploads[1] {
		t.Fatalf("re-issued key %q differs from original %q", uploads[1], uploads[0])
	}
}

func TestDownloadRequiresAck(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Download(context.Background(), p.ID, result.CompilationID)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("download before ack: expected NotFound, got %v", err)
	}
	if se.Message != "Compilation not found" {
		t.Fatalf("message = %q", se.Message)
	}

	if _, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID); err != nil {
		t.Fatalf("upload ack: %v", err)
	}

	signed, err := svc.Download(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("download after ack: %v", err)
	}
	if !strings.Contains(signed.URL, "storage.example.com") {
		t.Fatalf("expected direct signed url, got %q", signed.URL)
	}
}

func TestDownloadIOSResolvesManifestURL(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	in := androidInput()
	in.Platform = "ios"
	in.BundleID = "com.acme.launchpad"
	result, err := svc.Create(context.Background(), p.ID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID); err != nil {
		t.Fatalf("upload ack: %v", err)
	}

	signed, err := svc.Download(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	want := fmt.Sprintf("https://hangar.example.com/api/v1/product/%s/compilation/%s/plist", p.ID, result.CompilationID)
	if signed.URL != want {
		t.Fatalf("url = %q, want %q", signed.URL, want)
	}
}

func TestUploadAckNotifiesSubscribers(t *testing.T) {
	svc, store, _, notifier := newTestService(t)
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("upload ack: %v", err)
	}
	c, ok := updated.Compilation(result.CompilationID)
	if !ok || !c.Uploaded {
		t.Fatalf("expected uploaded flag set on returned product")
	}
	if len(notifier.identities) != 2 {
		t.Fatalf("expected 2 notified identities, got %v", notifier.identities)
	}
}

func TestUploadAckIsIdempotent(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID); err != nil {
		t.Fatalf("first ack: %v", err)
	}

	updated, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	c, ok := updated.Compilation(result.CompilationID)
	if !ok || !c.Uploaded {
		t.Fatalf("expected uploaded flag to stay set after repeated ack")
	}
}

func TestUploadAckNotifyFailureIsWarning(t *testing.T) {
	svc, store, _, notifier := newTestService(t)
	notifier.fail = true
	p := seedProduct(t, store)

	result, err := svc.Create(context.Background(), p.ID, androidInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID)
	if !stderrors.Is(err, ErrNotifyFailed) {
		t.Fatalf("expected ErrNotifyFailed, got %v", err)
	}
	c, ok := updated.Compilation(result.CompilationID)
	if !ok || !c.Uploaded {
		t.Fatalf("uploaded flag must stay committed despite notify failure")
	}

	// The committed state is observable by a subsequent download.
	if _, err := svc.Download(context.Background(), p.ID, result.CompilationID); err != nil {
		t.Fatalf("download after failed notify: %v", err)
	}
}

func TestUploadAckUnknownCompilation(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	_, err := svc.UploadAck(context.Background(), p.ID, "nope")
	if se := errors.GetServiceError(err); se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDownloadPlist(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	in := androidInput()
	in.Platform = "ios"
	in.BundleID = "com.acme.launchpad"
	result, err := svc.Create(context.Background(), p.ID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.DownloadPlist(context.Background(), p.ID, result.CompilationID); err == nil {
		t.Fatalf("plist before ack must not resolve")
	}

	if _, err := svc.UploadAck(context.Background(), p.ID, result.CompilationID); err != nil {
		t.Fatalf("upload ack: %v", err)
	}

	plist, err := svc.DownloadPlist(context.Background(), p.ID, result.CompilationID)
	if err != nil {
		t.Fatalf("download plist: %v", err)
	}
	if plist.FileName != result.CompilationID+".plist" {
		t.Fatalf("file name = %q", plist.FileName)
	}
	for _, needle := range []string{"Launchpad", "1.2.0", "com.acme.launchpad", "software-package"} {
		if !bytes.Contains(plist.Data, []byte(needle)) {
			t.Fatalf("manifest missing %q:\n%s", needle, plist.Data)
		}
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	p := seedProduct(t, store)

	first := androidInput()
	second := androidInput()
	second.Version = "1.3.0"

	if _, err := svc.Create(context.Background(), p.ID, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := svc.Create(context.Background(), p.ID, second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	list, err := svc.List(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 compilations, got %d", len(list))
	}
	if list[0].UploadedAt.Before(list[1].UploadedAt) {
		t.Fatalf("expected newest first, got versions %q, %q", list[0].Version, list[1].Version)
	}
	if list[0].DownloadURL == "" || list[0].PublicURL == "" {
		t.Fatalf("expected derived urls populated")
	}
}

func TestRemoveAll(t *testing.T) {
	svc, store, blobs, _ := newTestService(t)
	p := seedProduct(t, store)

	for _, version := range []string{"1.0.0", "1.1.0"} {
		in := androidInput()
		in.Version = version
		if _, err := svc.Create(context.Background(), p.ID, in); err != nil {
			t.Fatalf("create %s: %v", version, err)
		}
	}
	for _, file := range blobs.Uploads() {
		blobs.Put(file)
	}

	updated, err := svc.RemoveAll(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if len(updated.Compilations) != 0 {
		t.Fatalf("expected no compilations left")
	}
	if len(blobs.Removals()) != 2 {
		t.Fatalf("expected 2 blob removals, got %v", blobs.Removals())
	}
}
