package models

import "time"

// VerificationRecord is the persisted state of one purchase token. Field
// names are the wire contract with the store and must stay stable.
type VerificationRecord struct {
	Token                string    `json:"token"`
	Product              string    `json:"product"`
	Verified             bool      `json:"verified"`
	CreatedAt            time.Time `json:"created_at"`
	BuyerIdentity        *int64    `json:"buyer_identity,omitempty"`
	TransactionReference string    `json:"transaction_reference,omitempty"`
	AdminReference       string    `json:"admin_reference,omitempty"`
	DownloadLink         string    `json:"download_link"`
}

// HasBuyer reports whether a buyer identity has been bound to the record.
func (r *VerificationRecord) HasBuyer() bool {
	return r.BuyerIdentity != nil
}

// RecordUpdate is a partial update; nil fields are left untouched by the
// store's merge semantics.
type RecordUpdate struct {
	TransactionReference *string
	AdminReference       *string
	Verified             *bool
}

// IsEmpty reports whether the update would change nothing.
func (u RecordUpdate) IsEmpty() bool {
	return u.TransactionReference == nil && u.AdminReference == nil && u.Verified == nil
}
