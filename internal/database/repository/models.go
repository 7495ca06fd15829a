package repository

import "time"

// Entry is one journal row.
type Entry struct {
	ID         string
	RecordedAt time.Time
	Kind       string
	OrderNo    string
	FromState  string
	ToState    string
	UserEmail  string
	Message    string
}
