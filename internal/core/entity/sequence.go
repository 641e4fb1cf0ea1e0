package entity

import "time"

// Sequence is the persisted counter of one numbering series for one year.
// LastNumber is the last number handed out; zero means none yet.
type Sequence struct {
	EntityType string    `db:"entity_type" json:"entityType"`
	Year       int       `db:"year" json:"year"`
	LastNumber int64     `db:"last_number" json:"lastNumber"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}
