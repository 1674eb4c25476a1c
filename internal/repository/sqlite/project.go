package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

// PER-VIEWER COLUMNS:
// votes_count, is_voted and is_bookmarked are computed per row. The two
// EXISTS subqueries take the viewer's user id as their first two arguments;
// an anonymous viewer passes "" which matches no row, so both flags are false.
const projectSelect = `SELECT
	p.id, p.github_project_id, p.name, p.repo_url, p.description, p.avatar_url,
	p.stars, p.license, p.live_link, p.programming_language, p.github_created_at,
	p.user_id, p.created_at,
	(SELECT COUNT(*) FROM votes v WHERE v.project_id = p.id) AS votes_count,
	EXISTS (SELECT 1 FROM votes v WHERE v.project_id = p.id AND v.user_id = ?) AS is_voted,
	EXISTS (SELECT 1 FROM bookmarks b WHERE b.project_id = p.id AND b.user_id = ?) AS is_bookmarked
FROM projects p`

func scanProject(row interface{ Scan(...any) error }, p *model.Project) error {
	return row.Scan(
		&p.ID,
		&p.GitHubProjectID,
		&p.Name,
		&p.RepoURL,
		&p.Description,
		&p.AvatarURL,
		&p.Stars,
		&p.License,
		&p.LiveLink,
		&p.ProgrammingLanguage,
		&p.GitHubCreatedAt,
		&p.UserID,
		&p.CreatedAt,
		&p.VotesCount,
		&p.IsVoted,
		&p.IsBookmarked,
	)
}

// CreateProject inserts a project with its tags and fills in ID, CreatedAt
// and Tags. A repository submitted twice returns apperror.ErrConflict; an
// unknown tag id fails validation and nothing is written.
func (db *DB) CreateProject(ctx context.Context, p *model.Project, tagIDs []int64) error {
	now := time.Now().UTC()
	p.ID = xid.New().String()
	p.CreatedAt = now
	p.GitHubCreatedAt = p.GitHubCreatedAt.UTC()

	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (
				id, github_project_id, name, repo_url, description, avatar_url, stars,
				license, live_link, programming_language, github_created_at, user_id,
				created_at, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID,
			p.GitHubProjectID,
			p.Name,
			p.RepoURL,
			p.Description,
			p.AvatarURL,
			p.Stars,
			p.License,
			p.LiveLink,
			p.ProgrammingLanguage,
			p.GitHubCreatedAt,
			p.UserID,
			now,
			now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("project", strconv.FormatInt(p.GitHubProjectID, 10))
			}
			if isForeignKeyViolation(err) {
				return apperror.NotFound("user", p.UserID)
			}
			return fmt.Errorf("sqlite: creating project: %w", err)
		}

		if err := setProjectTags(ctx, tx, p.ID, tagIDs); err != nil {
			return err
		}

		tags, err := projectTags(ctx, tx, []string{p.ID})
		if err != nil {
			return err
		}
		p.Tags = tags[p.ID]
		return nil
	})
}

// setProjectTags replaces the project's tag set.
func setProjectTags(ctx context.Context, tx *sql.Tx, projectID string, tagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_tags WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("sqlite: clearing tags of project %s: %w", projectID, err)
	}
	for _, tagID := range dedupeIDs(tagIDs) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO project_tags (project_id, tag_id) VALUES (?, ?)`, projectID, tagID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.ValidationFailed("tagIds", fmt.Sprintf("unknown tag id %d", tagID))
			}
			return fmt.Errorf("sqlite: tagging project %s with %d: %w", projectID, tagID, err)
		}
	}
	return nil
}

// GetProject returns one project with its tags, seen by viewerID ("" for
// anonymous).
func (db *DB) GetProject(ctx context.Context, id, viewerID string) (*model.Project, error) {
	var p model.Project
	err := scanProject(db.conn.QueryRowContext(ctx,
		projectSelect+` WHERE p.id = ?`, viewerID, viewerID, id,
	), &p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("project", id)
		}
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}

	tags, err := projectTags(ctx, db.conn, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Tags = tags[p.ID]
	return &p, nil
}

// ListProjects returns one window of the filtered listing. Callers that
// want to know whether another page exists ask for Limit+1 rows.
func (db *DB) ListProjects(ctx context.Context, f repository.ProjectFilter, opts repository.ListOptions) ([]model.Project, error) {
	where, whereArgs := projectWhere(f)

	args := make([]any, 0, len(whereArgs)+4)
	args = append(args, f.ViewerID, f.ViewerID)
	args = append(args, whereArgs...)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		projectSelect+where+` ORDER BY `+projectOrder(f.Sort)+` LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects: %w", err)
	}

	projects := []model.Project{}
	ids := []string{}
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning project: %w", err)
		}
		projects = append(projects, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating projects: %w", err)
	}
	// Close before the tag query; ":memory:" databases have one connection.
	rows.Close()

	tags, err := projectTags(ctx, db.conn, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].Tags = tags[projects[i].ID]
	}
	return projects, nil
}

// CountProjects counts every project matching the filter, ignoring paging.
func (db *DB) CountProjects(ctx context.Context, f repository.ProjectFilter) (int, error) {
	where, args := projectWhere(f)

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects p`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting projects: %w", err)
	}
	return n, nil
}

// projectWhere builds the WHERE clause for a filter. Values always go
// through placeholders; only the shape of the clause is assembled here.
func projectWhere(f repository.ProjectFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		conds = append(conds, `p.name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if f.Language != "" {
		conds = append(conds, `p.programming_language = ?`)
		args = append(args, strings.ToLower(f.Language))
	}
	if len(f.TagIDs) > 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM project_tags pt WHERE pt.project_id = p.id AND pt.tag_id IN (`+placeholders(len(f.TagIDs))+`))`)
		for _, id := range f.TagIDs {
			args = append(args, id)
		}
	}
	if f.OwnerID != "" {
		conds = append(conds, `p.user_id = ?`)
		args = append(args, f.OwnerID)
	}
	if f.BookmarkedBy != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM bookmarks bm WHERE bm.project_id = p.id AND bm.user_id = ?)`)
		args = append(args, f.BookmarkedBy)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func projectOrder(s repository.ProjectSort) string {
	switch s {
	case repository.SortStars:
		return `p.stars DESC, p.id DESC`
	case repository.SortGitHubCreatedDesc:
		return `p.github_created_at DESC, p.id DESC`
	case repository.SortGitHubCreatedAsc:
		return `p.github_created_at ASC, p.id ASC`
	case repository.SortNewest:
		return `p.created_at DESC, p.id DESC`
	default:
		return `votes_count DESC, p.created_at DESC, p.id DESC`
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// projectTags loads the tags of several projects in one query.
func projectTags(ctx context.Context, q querier, projectIDs []string) (map[string][]model.Tag, error) {
	out := make(map[string][]model.Tag, len(projectIDs))
	for _, id := range projectIDs {
		out[id] = []model.Tag{}
	}
	if len(projectIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(projectIDs))
	for i, id := range projectIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx,
		`SELECT pt.project_id, t.id, t.name
		 FROM project_tags pt JOIN tags t ON t.id = pt.tag_id
		 WHERE pt.project_id IN (`+placeholders(len(projectIDs))+`)
		 ORDER BY t.name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading project tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			projectID string
			t         model.Tag
		)
		if err := rows.Scan(&projectID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project tag: %w", err)
		}
		out[projectID] = append(out[projectID], t)
	}
	return out, rows.Err()
}

// UpdateProject applies the owner-editable fields. A non-nil TagIDs
// replaces the tag set.
func (db *DB) UpdateProject(ctx context.Context, id string, upd model.ProjectUpdate) error {
	var lang *string
	if upd.ProgrammingLanguage != nil {
		l := strings.ToLower(*upd.ProgrammingLanguage)
		lang = &l
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET
				live_link            = COALESCE(?, live_link),
				programming_language = COALESCE(?, programming_language),
				updated_at           = ?
			 WHERE id = ?`,
			nullString(upd.LiveLink), nullString(lang), time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating project %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("project", id)
		}

		if upd.TagIDs != nil {
			return setProjectTags(ctx, tx, id, upd.TagIDs)
		}
		return nil
	})
}

// DeleteProject removes a project with its tags, votes and bookmarks.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("project", id)
	}
	return nil
}
