package types

// Status is a type for the row status of a resource in the database.
// This tracks the lifecycle of a row and determines if it is included in
// queries; it is independent of any domain-level status like a
// subscription's billing state.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}
