package apperror

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// FromDB converts storage errors into the taxonomy. Requires gorm.Config.TranslateError.
func FromDB(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
