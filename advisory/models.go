package advisory

import "time"

// Assignment is the answer to "does this party have an assigned advisor".
// State machines switch on HasAdvisor rather than on a nullable id so the
// auto-skip path is explicit.
type Assignment struct {
	HasAdvisor bool
	AdvisorID  string
}

// Profile captures the subset of advisor data exposed via the public API layer.
type Profile struct {
	ID        string
	FullName  string
	Email     string
	CreatedAt time.Time
}
