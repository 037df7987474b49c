package upload

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// LinkOptions customizes LinkToEntity. The zero value links with the
// entity's type name as display name, marked in use, without notes.
type LinkOptions struct {
	Name       string // display name recorded on the relation
	MarkUnused bool   // relations are marked in use unless set
	Notes      string
}

// LinkToEntity records an EntityRelation on the entry pointing at the
// entity. The identifier is resolved from the entity itself: either its
// EntityID method, or a field literally named Id/ID/{TypeName}Id/{TypeName}ID.
// Linking the same (identifier, display name) pair twice is a no-op; the
// match is case-insensitive.
func LinkToEntity(entry *FileEntry, entity any, opts ...LinkOptions) error {
	if entry == nil {
		return &ValidationError{Field: "entry", Reason: "is nil"}
	}
	id, err := resolveEntityID(entity)
	if err != nil {
		return err
	}

	var o LinkOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	name := o.Name
	if name == "" {
		name = entityTypeName(entity)
	}

	entry.addRelation(EntityRelation{
		EntityID:   id,
		EntityName: name,
		InUse:      !o.MarkUnused,
		Notes:      o.Notes,
		LinkedAt:   time.Now(),
	})
	return nil
}

// addRelation appends the relation unless one already matches on
// (identifier, display name) case-insensitively.
func (e *FileEntry) addRelation(rel EntityRelation) bool {
	for _, existing := range e.Relations {
		if strings.EqualFold(existing.EntityID, rel.EntityID) &&
			strings.EqualFold(existing.EntityName, rel.EntityName) {
			return false
		}
	}
	e.Relations = append(e.Relations, rel)
	return true
}

func entityTypeName(entity any) string {
	t := reflect.TypeOf(entity)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// resolveEntityID extracts a non-empty identifier from the entity, either
// through the EntityWithID capability or by looking for an Id-shaped field.
func resolveEntityID(entity any) (string, error) {
	if entity == nil {
		return "", &ValidationError{Field: "entity", Reason: "is nil"}
	}

	if withID, ok := entity.(EntityWithID); ok {
		if id := strings.TrimSpace(withID.EntityID()); id != "" {
			return id, nil
		}
		return "", &ValidationError{Field: "entity", Reason: "EntityID returned an empty identifier"}
	}

	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", &ValidationError{Field: "entity", Reason: "is nil"}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", &ValidationError{Field: "entity", Reason: fmt.Sprintf("%T has no resolvable identifier", entity)}
	}

	typeName := v.Type().Name()
	for _, field := range []string{"Id", "ID", typeName + "Id", typeName + "ID"} {
		f := v.FieldByName(field)
		if !f.IsValid() || !f.CanInterface() {
			continue
		}
		if id := strings.TrimSpace(fmt.Sprint(f.Interface())); id != "" {
			return id, nil
		}
	}
	return "", &ValidationError{
		Field:  "entity",
		Reason: fmt.Sprintf("%s has no non-empty Id field", typeName),
	}
}
