// Package entity provides core bookkeeping entities.
package entity

import (
	"fmt"

	"bookkeeping/internal/core/id"
)

// ReferenceKind names the kind of business document a movement or ledger
// entry originates from. The core stores it for traceability only.
type ReferenceKind string

const (
	RefIssueVoucher ReferenceKind = "issue_voucher"
	RefPayment      ReferenceKind = "payment"
	RefReturn       ReferenceKind = "return"
	RefDiscount     ReferenceKind = "discount"
	RefTransfer     ReferenceKind = "transfer"
	RefManual       ReferenceKind = "manual"
)

// Valid reports whether k is one of the known reference kinds.
func (k ReferenceKind) Valid() bool {
	switch k {
	case RefIssueVoucher, RefPayment, RefReturn, RefDiscount, RefTransfer, RefManual:
		return true
	}
	return false
}

// ParseReferenceKind converts a stored string into a ReferenceKind.
func ParseReferenceKind(s string) (ReferenceKind, error) {
	k := ReferenceKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown reference kind %q", s)
	}
	return k, nil
}

// Reference points back to the document that caused a record.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   id.ID         `json:"id"`
}

// NewReference builds a reference to a document.
func NewReference(kind ReferenceKind, docID id.ID) *Reference {
	return &Reference{Kind: kind, ID: docID}
}

// String renders the reference as "kind:id", or "" for nil.
func (r *Reference) String() string {
	if r == nil {
		return ""
	}
	return string(r.Kind) + ":" + r.ID.String()
}

// Validate checks the kind and the document id.
func (r *Reference) Validate() error {
	if r == nil {
		return nil
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown reference kind %q", r.Kind)
	}
	if id.IsNil(r.ID) {
		return fmt.Errorf("reference %s has no document id", r.Kind)
	}
	return nil
}
