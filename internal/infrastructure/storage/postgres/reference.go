package postgres

import (
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
)

// ReferenceColumns flattens a reference into the nullable
// (reference_type, reference_id) column pair.
func ReferenceColumns(ref *entity.Reference) (*string, *id.ID) {
	if ref == nil {
		return nil, nil
	}
	kind := string(ref.Kind)
	docID := ref.ID
	return &kind, &docID
}

// ReferenceFromColumns rebuilds a reference from its column pair.
// Both columns NULL means no reference.
func ReferenceFromColumns(kind *string, docID *id.ID) (*entity.Reference, error) {
	if kind == nil && docID == nil {
		return nil, nil
	}
	ref := &entity.Reference{}
	if kind != nil {
		k, err := entity.ParseReferenceKind(*kind)
		if err != nil {
			return nil, err
		}
		ref.Kind = k
	}
	if docID != nil {
		ref.ID = *docID
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}
