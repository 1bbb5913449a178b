// internal/model/orphan.go
package model

// OrphanSample identifies one orphaned row for operator inspection.
type OrphanSample struct {
	ID           string `json:"id"`
	DisplayValue string `json:"display_value"`
}

// OrphanRecord is the per-table result of a detection pass. It is computed
// on demand and never stored; MissingCount of -1 marks a table whose scan
// failed (e.g. missing column) without aborting the batch.
type OrphanRecord struct {
	Table        string         `json:"table"`
	MissingCount int64          `json:"missing_count"`
	Samples      []OrphanSample `json:"samples,omitempty"`
}
