package store

import (
	"fmt"

	"quorum/internal/ident"
)

func idValue(id ident.ID) any {
	if id.IsZero() {
		return nil
	}
	return id.Bytes()
}

func idFromColumn(data []byte) (ident.ID, error) {
	if len(data) == 0 {
		return ident.Zero, nil
	}
	id, err := ident.FromBytes(data)
	if err != nil {
		return ident.Zero, fmt.Errorf("decode stored id: %w", err)
	}
	return id, nil
}

func nullableBytes(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
