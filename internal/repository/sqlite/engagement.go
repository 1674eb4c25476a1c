package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/repository"
)

var _ repository.EngagementRepository = (*DB)(nil)

// Votes and bookmarks share one shape: a (user_id, project_id) primary key
// plus created_at. The table name is always one of the two constants below,
// never caller input.
const (
	votesTable     = "votes"
	bookmarksTable = "bookmarks"
)

func (db *DB) AddVote(ctx context.Context, userID, projectID string) error {
	return db.addMark(ctx, votesTable, "vote", userID, projectID)
}

func (db *DB) RemoveVote(ctx context.Context, userID, projectID string) error {
	return db.removeMark(ctx, votesTable, "vote", userID, projectID)
}

func (db *DB) AddBookmark(ctx context.Context, userID, projectID string) error {
	return db.addMark(ctx, bookmarksTable, "bookmark", userID, projectID)
}

func (db *DB) RemoveBookmark(ctx context.Context, userID, projectID string) error {
	return db.removeMark(ctx, bookmarksTable, "bookmark", userID, projectID)
}

func (db *DB) addMark(ctx context.Context, table, kind, userID, projectID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id, project_id, created_at) VALUES (?, ?, ?)`,
		userID, projectID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(kind, projectID)
		}
		if isForeignKeyViolation(err) {
			return db.missingMarkParent(ctx, userID, projectID)
		}
		return fmt.Errorf("sqlite: adding %s on project %s: %w", kind, projectID, err)
	}
	return nil
}

// missingMarkParent names the row a failed foreign key pointed at. SQLite
// does not say which constraint failed, so the project is looked up; if it
// exists, the user is the one missing (deleted while its token is valid).
func (db *DB) missingMarkParent(ctx context.Context, userID, projectID string) error {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM projects WHERE id = ?)`, projectID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking project %s: %w", projectID, err)
	}
	if exists {
		return apperror.NotFound("user", userID)
	}
	return apperror.NotFound("project", projectID)
}

func (db *DB) removeMark(ctx context.Context, table, kind, userID, projectID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE user_id = ? AND project_id = ?`,
		userID, projectID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s on project %s: %w", kind, projectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound(kind, projectID)
	}
	return nil
}
