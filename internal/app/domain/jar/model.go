// Package jar holds the domain types for tracked fundraising jars and their
// balance history.
package jar

import "time"

// ProviderStatusActive is the provider-side status meaning the jar is still
// collecting. Any other status closes the jar on the next sync cycle.
const ProviderStatusActive = "ACTIVE"

// Jar represents one external fundraising campaign tracked by the service.
type Jar struct {
	ID           string
	ExternalID   string
	Title        string
	Description  string
	VolunteerID  string
	Tags         []string
	Goal         *int64
	TitleImgRef  string
	ImgAlt       string
	DisplayOrder int
	DateAdded    time.Time
	DateClosed   *time.Time
	UpdatedAt    time.Time
}

// Closed reports whether the jar has been closed. DateClosed is set exactly
// once and never cleared.
func (j Jar) Closed() bool { return j.DateClosed != nil }

// BalanceSample is one point-in-time observation of a jar's balance.
// Samples are append-only; income delta is the difference to the previous
// sample's amount (previous amount taken as 0 for the first sample).
type BalanceSample struct {
	ID          int64
	JarID       string
	Amount      *int64
	IncomeDelta int64
	ObservedAt  time.Time
}

// Tag is a short unique label attached to jars.
type Tag struct {
	ID   string
	Name string
}

// AlbumImage is one entry of a jar's image album.
type AlbumImage struct {
	ID        string
	JarID     string
	ImgRef    string
	ImgAlt    string
	Position  int
	DateAdded time.Time
}

// Observation is the provider's answer for a single jar.
type Observation struct {
	Amount *int64
	Goal   *int64
	Status string
}

// SyncUpdate carries the outcome of one provider observation into storage.
// The store applies the jar mutation and the new sample in one transaction.
type SyncUpdate struct {
	// Goal, when set, overwrites the stored goal (the provider is the
	// source of truth once it starts reporting one).
	Goal *int64
	// CloseAt, when set, closes the jar unless it is already closed.
	CloseAt *time.Time
	// Amount is the observed balance recorded in the new sample.
	Amount     *int64
	ObservedAt time.Time
}

// Summary is a jar together with its read-time derived fields. CurrentSum is
// the amount of the newest sample; FillPercentage is nil when the jar has no
// samples or no positive goal.
type Summary struct {
	Jar
	VolunteerName  string
	CurrentSum     *int64
	FillPercentage *float64
}
