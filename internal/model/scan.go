package model

import "sort"

// Identity is the opaque per-session token identifying the current
// anonymous user. Empty means "no identity yet".
type Identity string

// ScanStatus is the closed set of verdicts the classifier may return.
type ScanStatus string

const (
	StatusSafe       ScanStatus = "safe"
	StatusSuspicious ScanStatus = "suspicious"
	StatusMalicious  ScanStatus = "malicious"
)

// Valid reports whether s is one of the known verdicts.
func (s ScanStatus) Valid() bool {
	switch s {
	case StatusSafe, StatusSuspicious, StatusMalicious:
		return true
	}
	return false
}

// Verdict is the classifier's answer for a single URL. The reason text is
// model-generated and untrusted; treat it as opaque display data.
type Verdict struct {
	Status ScanStatus `json:"status"`
	Reason string     `json:"reason"`
}

// ScanRecord is the persisted outcome of one URL classification.
type ScanRecord struct {
	// ID is assigned by the history store on write.
	ID string `json:"id"`

	// URL is the submitted target, exactly as entered. Not validated.
	URL string `json:"url"`

	Status ScanStatus `json:"status"`
	Reason string     `json:"reason"`

	// Timestamp is milliseconds since epoch, assigned client-side at
	// submission time.
	Timestamp int64 `json:"timestamp"`
}

// SortRecords orders records newest-first. The store gives no ordering
// guarantee, so every snapshot is re-sorted in full before display.
func SortRecords(records []ScanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}
