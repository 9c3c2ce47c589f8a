package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound marks lookups whose target row does not exist. Repository
// implementations wrap it so services can map it to a 404 without knowing
// the storage backend.
var ErrNotFound = errors.New("record not found")

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
