package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
)

func TestReferenceColumns(t *testing.T) {
	kind, docID := ReferenceColumns(nil)
	assert.Nil(t, kind)
	assert.Nil(t, docID)

	ref := entity.NewReference(entity.RefPayment, id.New())
	kind, docID = ReferenceColumns(ref)
	require.NotNil(t, kind)
	require.NotNil(t, docID)
	assert.Equal(t, "payment", *kind)
	assert.Equal(t, ref.ID, *docID)

	back, err := ReferenceFromColumns(kind, docID)
	require.NoError(t, err)
	assert.Equal(t, ref, back)
}

func TestReferenceFromColumns_Invalid(t *testing.T) {
	ref, err := ReferenceFromColumns(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, ref)

	bogus := "invoice"
	docID := id.New()
	_, err = ReferenceFromColumns(&bogus, &docID)
	assert.Error(t, err)

	kind := "transfer"
	_, err = ReferenceFromColumns(&kind, nil)
	assert.Error(t, err, "a kind without a document id is corrupt")
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[entity.StockBalance]()
	assert.Equal(t, []string{"product_id", "branch_id", "current_stock", "updated_at"}, cols)
}

func TestStructToMap(t *testing.T) {
	seq := entity.Sequence{EntityType: "payments", Year: 2025, LastNumber: 12}

	m := StructToMap(seq)

	assert.Equal(t, "payments", m["entity_type"])
	assert.Equal(t, 2025, m["year"])
	assert.Equal(t, int64(12), m["last_number"])
	assert.Contains(t, m, "updated_at")
	assert.Nil(t, StructToMap(42))
}
