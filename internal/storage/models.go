package storage

import "time"

// PolicyDocument records a policy file that has been indexed into a namespace.
type PolicyDocument struct {
	ID          string
	Namespace   string
	Path        string
	ContentHash string
	Chunks      int
	IndexedAt   time.Time
}
