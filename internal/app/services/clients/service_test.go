package clients

import (
	"context"
	"testing"

	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
	"github.com/hangarhq/hangar/internal/app/storage/memory"
	"github.com/hangarhq/hangar/internal/errors"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewService(store, store, store, nil), store
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{Name: "Acme", Domains: []string{"acme.com"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" {
		t.Fatalf("expected id to be generated")
	}

	_, err = svc.Create(ctx, CreateInput{Name: "Acme"})
	if se := errors.GetServiceError(err); se == nil || se.Code != errors.CodeConflict {
		t.Fatalf("duplicate name: got %v", err)
	}
	_, err = svc.Create(ctx, CreateInput{})
	if se := errors.GetServiceError(err); se == nil || se.Code != errors.CodeBadRequest {
		t.Fatalf("missing name: got %v", err)
	}
}

func TestRenameCascades(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	u, err := store.CreateUser(ctx, user.User{Name: "dev", Email: "dev@acme.com", Client: "Acme"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	p, err := store.CreateProduct(ctx, product.Product{Name: "Launchpad", Client: "Acme"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	name := "Acme Industries"
	updated, err := svc.Update(ctx, c.ID, UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.Name != name {
		t.Fatalf("client name = %q", updated.Name)
	}

	renamedUser, err := store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if renamedUser.Client != name {
		t.Fatalf("user client = %q, want %q", renamedUser.Client, name)
	}
	renamedProduct, err := store.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if renamedProduct.Client != name {
		t.Fatalf("product client = %q, want %q", renamedProduct.Client, name)
	}
}

func TestRenameOntoExistingClient(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "Globex"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Globex"
	_, err = svc.Update(ctx, a.ID, UpdateInput{Name: &name})
	if se := errors.GetServiceError(err); se == nil || se.Code != errors.CodeConflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestDeleteRefusedWithProducts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateProduct(ctx, product.Product{Name: "Launchpad", Client: "Acme"}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	err = svc.Delete(ctx, c.ID)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeBadRequest {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if se.Message != "Cannot delete client with associated products" {
		t.Fatalf("message = %q", se.Message)
	}
}

func TestDomains(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Name: "Acme", Domains: []string{"acme.com", "acme.io"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "Globex", Domains: []string{"acme.com", "globex.com"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	domains, err := svc.Domains(ctx)
	if err != nil {
		t.Fatalf("domains: %v", err)
	}
	if len(domains) != 3 {
		t.Fatalf("expected 3 distinct domains, got %v", domains)
	}
}
