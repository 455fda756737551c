package infrastructure

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewRunID returns a lexicographically sortable run identifier
func NewRunID() string {
	return strings.ToLower(ulid.Make().String())
}

// ValidateRunID rejects ids that are not ULIDs. Run ids are used as
// directory names, so this also keeps path separators out.
func ValidateRunID(id string) error {
	if _, err := ulid.ParseStrict(strings.ToUpper(id)); err != nil {
		return fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return nil
}
