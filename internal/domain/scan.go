package domain

import "time"

// ScanRecord is one completed medication scan kept in the user's history.
type ScanRecord struct {
	ID             string
	UserID         string
	MedicationName string
	Confidence     float64
	AnalysisJSON   []byte
	CreatedAt      time.Time
}
