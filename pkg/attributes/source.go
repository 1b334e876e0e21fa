package attributes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Source is the authoritative role and attribute source, normally the identity provider.
// Returning (nil, nil) or ErrNoAssignments means the user has nothing assigned for the service.
type Source interface {
	LoadRolesAndAttributes(ctx context.Context, userID, service string) (*RawAttributes, error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(ctx context.Context, userID, service string) (*RawAttributes, error)

// LoadRolesAndAttributes calls f
func (f SourceFunc) LoadRolesAndAttributes(ctx context.Context, userID, service string) (*RawAttributes, error) {
	return f(ctx, userID, service)
}

// SQLSource reads role assignments from the identity provider's database
type SQLSource struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLSource creates a new SQL-backed source
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db, now: time.Now}
}

// WithClock overrides the clock used to exclude expired role grants
func (s *SQLSource) WithClock(now func() time.Time) *SQLSource {
	s.now = now
	return s
}

// LoadRolesAndAttributes loads the user profile, service roles and attributes
func (s *SQLSource) LoadRolesAndAttributes(ctx context.Context, userID, service string) (*RawAttributes, error) {
	raw := &RawAttributes{Attributes: map[string]any{}}

	query := `
		SELECT username, email, COALESCE(department, '')
		FROM idp_users
		WHERE id = $1 AND is_active = TRUE
	`
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&raw.Username, &raw.Email, &raw.Department)
	if err == sql.ErrNoRows {
		return nil, ErrNoAssignments
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	roles, err := s.queryStrings(ctx, `
		SELECT role_name
		FROM idp_service_roles
		WHERE user_id = $1 AND service = $2
		  AND (expires_at IS NULL OR expires_at > $3)
	`, userID, service, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	raw.Roles = roles

	raw.AdminGroupIDs, err = s.queryStrings(ctx, `
		SELECT group_id
		FROM idp_admin_group_members
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin groups: %w", err)
	}

	raw.CustomerIDs, err = s.queryStrings(ctx, `
		SELECT customer_id
		FROM idp_customer_access
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer access: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT attr_key, attr_value
		FROM idp_user_attributes
		WHERE user_id = $1 AND service = $2
	`, userID, service)
	if err != nil {
		return nil, fmt.Errorf("failed to load attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, valueJSON string
		if err := rows.Scan(&key, &valueJSON); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			// Plain strings are stored unquoted by older identity provider versions
			value = valueJSON
		}
		raw.Attributes[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}

	return raw, nil
}

func (s *SQLSource) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
