package storage

import (
	"errors"
	"strconv"
)

// NotFoundError is returned when an entry doesn't exist in the store.
type NotFoundError struct {
	ID        int64
	Timestamp int64
}

func (e NotFoundError) Error() string {
	switch {
	case e.ID != 0:
		return "entry not found: id " + strconv.FormatInt(e.ID, 10)
	case e.Timestamp != 0:
		return "entry not found: timestamp " + strconv.FormatInt(e.Timestamp, 10)
	default:
		return "entry not found"
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
