package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, name, bio, avatar_url, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	return row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Bio,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}

// GetUserByID retrieves a user and their skills by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, db.conn, id)
}

func getUser(ctx context.Context, q querier, id string) (*model.User, error) {
	var u model.User
	err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	skills, err := userSkills(ctx, q, id)
	if err != nil {
		return nil, err
	}
	u.Skills = skills

	return &u, nil
}

func userSkills(ctx context.Context, q querier, userID string) ([]model.Skill, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT s.id, s.name
		 FROM skills s JOIN user_skills us ON us.skill_id = s.id
		 WHERE us.user_id = ?
		 ORDER BY s.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing skills of user %s: %w", userID, err)
	}
	defer rows.Close()

	skills := []model.Skill{}
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning skill: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

// UpdateProfile applies a partial update. Nil fields keep their value; a
// non-nil SkillIDs replaces the skill set. Unknown skill ids fail validation
// and nothing is written.
func (db *DB) UpdateProfile(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	var user *model.User

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		// A nil field is sent as NULL, so COALESCE keeps the column.
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET
				name       = COALESCE(?, name),
				bio        = COALESCE(?, bio),
				avatar_url = COALESCE(?, avatar_url),
				updated_at = ?
			 WHERE id = ?`,
			nullString(upd.Name), nullString(upd.Bio), nullString(upd.AvatarURL), time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("user", id)
		}

		if upd.SkillIDs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM user_skills WHERE user_id = ?`, id); err != nil {
				return fmt.Errorf("sqlite: clearing skills of user %s: %w", id, err)
			}
			for _, skillID := range dedupeIDs(upd.SkillIDs) {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO user_skills (user_id, skill_id) VALUES (?, ?)`, id, skillID)
				if err != nil {
					if isForeignKeyViolation(err) {
						return apperror.ValidationFailed("skillIds", fmt.Sprintf("unknown skill id %d", skillID))
					}
					return fmt.Errorf("sqlite: adding skill %d to user %s: %w", skillID, id, err)
				}
			}
		}

		user, err = getUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a user. Accounts, projects, votes and bookmarks go with
// it through ON DELETE CASCADE.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// ListSkills returns the seeded skills ordered by name.
func (db *DB) ListSkills(ctx context.Context) ([]model.Skill, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM skills ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing skills: %w", err)
	}
	defer rows.Close()

	skills := []model.Skill{}
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning skill: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}
