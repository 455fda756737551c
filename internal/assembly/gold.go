package assembly

import (
	"fmt"

	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// WriteGold persists a gold table atomically as comma separated CSV
func WriteGold(path string, t domain.Table) error {
	if err := files.WriteTableAtomic(path, t); err != nil {
		return fmt.Errorf("failed to write gold table: %w", err)
	}
	return nil
}

// LoadGold reads a persisted gold table and checks its key columns
func LoadGold(path string) (domain.Table, error) {
	t, err := files.ReadTable(path, files.ReadOptions{Comma: ','})
	if err != nil {
		return domain.Table{}, err
	}
	if !t.HasColumn(domain.ColumnTicker) || !t.HasColumn(domain.ColumnDate) {
		return domain.Table{}, fmt.Errorf("%s is missing ticker/date key columns", path)
	}
	return t, nil
}
