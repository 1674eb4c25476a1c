package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

var _ repository.TagRepository = (*DB)(nil)

// ListTags returns the seeded project tags ordered by name.
func (db *DB) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
