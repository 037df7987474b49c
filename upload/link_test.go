package upload

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type User struct {
	ID   string
	Name string
}

type Invoice struct {
	InvoiceId int
}

type badge struct {
	Code string // no Id-shaped field
}

type apiKey struct {
	id string
}

func (k apiKey) EntityID() string { return k.id }

type album struct {
	ID    string
	files []*FileEntry
}

func (a *album) AttachFile(entry *FileEntry) error {
	a.files = append(a.files, entry)
	return nil
}

func TestLinkToEntityByIDField(t *testing.T) {
	entry := &FileEntry{}
	if err := LinkToEntity(entry, &User{ID: "u-42"}); err != nil {
		t.Fatalf("LinkToEntity failed: %v", err)
	}
	if len(entry.Relations) != 1 {
		t.Fatalf("Expected 1 relation, got %d", len(entry.Relations))
	}
	rel := entry.Relations[0]
	if rel.EntityID != "u-42" {
		t.Errorf("Expected EntityID u-42, got %s", rel.EntityID)
	}
	if rel.EntityName != "User" {
		t.Errorf("Expected EntityName User, got %s", rel.EntityName)
	}
	if !rel.InUse {
		t.Error("Expected relation marked in use by default")
	}
}

func TestLinkToEntityByTypedIDField(t *testing.T) {
	entry := &FileEntry{}
	if err := LinkToEntity(entry, Invoice{InvoiceId: 7}); err != nil {
		t.Fatalf("LinkToEntity failed: %v", err)
	}
	if entry.Relations[0].EntityID != "7" {
		t.Errorf("Expected EntityID 7, got %s", entry.Relations[0].EntityID)
	}
}

func TestLinkToEntityByCapability(t *testing.T) {
	entry := &FileEntry{}
	if err := LinkToEntity(entry, apiKey{id: "key-1"}); err != nil {
		t.Fatalf("LinkToEntity failed: %v", err)
	}
	if entry.Relations[0].EntityID != "key-1" {
		t.Errorf("Expected EntityID key-1, got %s", entry.Relations[0].EntityID)
	}
}

func TestLinkToEntityIdempotent(t *testing.T) {
	entry := &FileEntry{}
	if err := LinkToEntity(entry, &User{ID: "u-1"}); err != nil {
		t.Fatalf("First link failed: %v", err)
	}
	if err := LinkToEntity(entry, &User{ID: "u-1"}); err != nil {
		t.Fatalf("Second link failed: %v", err)
	}
	// Case differences must not create a second relation.
	if err := LinkToEntity(entry, &User{ID: "U-1"}); err != nil {
		t.Fatalf("Case-variant link failed: %v", err)
	}
	if len(entry.Relations) != 1 {
		t.Errorf("Expected 1 relation after duplicate links, got %d", len(entry.Relations))
	}

	// A different display name is a distinct relation.
	if err := LinkToEntity(entry, &User{ID: "u-1"}, LinkOptions{Name: "Owner"}); err != nil {
		t.Fatalf("Named link failed: %v", err)
	}
	if len(entry.Relations) != 2 {
		t.Errorf("Expected 2 relations, got %d", len(entry.Relations))
	}
}

func TestLinkToEntityOptions(t *testing.T) {
	entry := &FileEntry{}
	err := LinkToEntity(entry, &User{ID: "u-9"}, LinkOptions{Name: "Author", MarkUnused: true, Notes: "migrated"})
	if err != nil {
		t.Fatalf("LinkToEntity failed: %v", err)
	}
	rel := entry.Relations[0]
	if rel.EntityName != "Author" {
		t.Errorf("Expected EntityName Author, got %s", rel.EntityName)
	}
	if rel.InUse {
		t.Error("Expected relation marked unused")
	}
	if rel.Notes != "migrated" {
		t.Errorf("Expected notes recorded, got %q", rel.Notes)
	}
}

func TestLinkToEntityValidation(t *testing.T) {
	var validation *ValidationError

	if err := LinkToEntity(nil, &User{ID: "u-1"}); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for nil entry, got %v", err)
	}
	if err := LinkToEntity(&FileEntry{}, nil); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for nil entity, got %v", err)
	}
	if err := LinkToEntity(&FileEntry{}, &User{}); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for blank identifier, got %v", err)
	}
	if err := LinkToEntity(&FileEntry{}, badge{Code: "x"}); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for missing Id field, got %v", err)
	}
	if err := LinkToEntity(&FileEntry{}, "not a struct"); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for non-struct entity, got %v", err)
	}
}

func TestCreateForEntity(t *testing.T) {
	store := newFakeStore()
	exec := NewBlobExecutor("local", store, ImageOptions{})
	a := &album{ID: "alb-1"}

	entry, err := exec.CreateForEntity(context.Background(), a, pngFile(t, "cover.png", 8, 8), "Albums")
	if err != nil {
		t.Fatalf("CreateForEntity failed: %v", err)
	}

	if !strings.HasPrefix(entry.Location, "Albums/album/Images/") {
		t.Errorf("Expected entity type name in address, got %s", entry.Location)
	}
	if len(a.files) != 1 || a.files[0] != entry {
		t.Error("Expected entry attached to the entity")
	}
	if len(entry.Relations) != 1 || entry.Relations[0].EntityID != "alb-1" {
		t.Errorf("Expected relation to alb-1, got %+v", entry.Relations)
	}
}

func TestCreateForEntityValidatesBeforeWriting(t *testing.T) {
	store := newFakeStore()
	exec := NewBlobExecutor("local", store, ImageOptions{})

	var validation *ValidationError
	_, err := exec.CreateForEntity(context.Background(), &User{}, pngFile(t, "a.png", 4, 4), "Users")
	if !errors.As(err, &validation) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if locations, _ := store.List(context.Background(), ""); len(locations) != 0 {
		t.Errorf("Expected no bytes written for invalid entity, got %v", locations)
	}
}

func TestCreateForEntityWithVariantsCopiesRelations(t *testing.T) {
	store := newFakeStore()
	exec := NewBlobExecutor("local", store, ImageOptions{
		CreateThumbnail:   true,
		ThumbnailMaxWidth: 100, ThumbnailMaxHeight: 100,
	})

	primary, variants, err := exec.CreateForEntityWithVariants(context.Background(), &User{ID: "u-5"}, pngFile(t, "avatar.png", 300, 300), "Users")
	if err != nil {
		t.Fatalf("CreateForEntityWithVariants failed: %v", err)
	}
	if len(primary.Relations) != 1 {
		t.Fatalf("Expected primary linked, got %d relations", len(primary.Relations))
	}
	if len(variants) != 1 {
		t.Fatalf("Expected 1 variant, got %d", len(variants))
	}
	if len(variants[0].Relations) != 1 || variants[0].Relations[0].EntityID != "u-5" {
		t.Errorf("Expected relation copied onto the variant, got %+v", variants[0].Relations)
	}
}
