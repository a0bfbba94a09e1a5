package job

import "errors"

var (
	// ErrRecordNotFound is returned when a job record cannot be found in the database
	ErrRecordNotFound = errors.New("job record not found")

	// ErrRecordTerminal is returned when an update would move a record out of the terminal status
	ErrRecordTerminal = errors.New("job record is terminal")
)
