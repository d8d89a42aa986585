package domain

// DefaultMaxResults is the default page size when none is specified.
const DefaultMaxResults = 100

// MaxMaxResults is the maximum allowed page size.
const MaxMaxResults = 1000

// PageRequest holds pagination parameters for list operations.
type PageRequest struct {
	MaxResults int
	Offset     int
}

// Limit returns the effective page size, clamped to [1, MaxMaxResults].
func (p PageRequest) Limit() int {
	if p.MaxResults <= 0 {
		return DefaultMaxResults
	}
	if p.MaxResults > MaxMaxResults {
		return MaxMaxResults
	}
	return p.MaxResults
}

// Start returns the effective offset, never negative.
func (p PageRequest) Start() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}
