package sqlite

import (
	"context"
	"fmt"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const userColumns = `id, display_name, role, timezone, created_at, updated_at`

// GetUser retrieves a directory user by id.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return persistence.User{}, mapError(err)
	}
	return user, nil
}

// ListUsers returns the users matching the ids, ordered by id. Unknown ids are
// silently skipped; callers that need strict resolution compare lengths.
func (s *Storage) ListUsers(ctx context.Context, ids []string) ([]persistence.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT `+userColumns+` FROM users WHERE id IN (%s) ORDER BY id ASC`, placeholders(len(ids)))
	rows, err := s.q.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// ListStaff returns every user carrying the staff role, ordered by id.
func (s *Storage) ListStaff(ctx context.Context) ([]persistence.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? ORDER BY id ASC`
	rows, err := s.q.QueryContext(ctx, query, persistence.RoleStaff)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// PutUser inserts or replaces a directory user.
func (s *Storage) PutUser(ctx context.Context, user persistence.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`
	_, err := s.q.ExecContext(ctx, query,
		user.ID,
		user.DisplayName,
		user.Role,
		user.Timezone,
		timeText(user.CreatedAt),
		timeText(user.UpdatedAt),
	)
	return mapError(err)
}

func scanUser(row rowScanner) (persistence.User, error) {
	var user persistence.User
	var createdStr, updatedStr string

	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Role,
		&user.Timezone,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.User{}, err
	}

	if user.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
