// store/user_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
)

// UserStore looks up account records by attribute filters.
type UserStore interface {
	Find(ctx context.Context, filters map[string]any) (*model.UserRecord, error)
}

// APIKeyStore looks up device-scoped API keys. Revoked keys are never
// returned.
type APIKeyStore interface {
	GetKey(ctx context.Context, userID int64, deviceID string) (*model.APIKeyRecord, error)
}

// userColumns are the filterable columns of the users view.
var userColumns = map[string]bool{
	"user_id":  true,
	"username": true,
	"email":    true,
}

// PostgresUserStore reads user and API-key records from Postgres.
type PostgresUserStore struct {
	pool   *pgxpool.Pool
	schema string
	view   string
}

func NewPostgresUserStore(pool *pgxpool.Pool, schema, view string) *PostgresUserStore {
	if schema == "" {
		schema = "auth"
	}
	if view == "" {
		view = "vw_users"
	}
	return &PostgresUserStore{pool: pool, schema: schema, view: view}
}

// Find returns the single user matching every filter, or ErrUserNotFound.
// Filter keys outside the filterable column set fail instead of being
// silently dropped.
func (s *PostgresUserStore) Find(ctx context.Context, filters map[string]any) (*model.UserRecord, error) {
	if len(filters) == 0 {
		return nil, gk_errors.Wrap(gk_errors.ErrUserNotFound, "empty user filter")
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !userColumns[k] {
			return nil, gk_errors.Wrapf(gk_errors.ErrAuth, "unknown user filter column: %s", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, filters[k])
	}
	query := fmt.Sprintf(
		`SELECT user_id, username, password, first_name, last_name, email,
		        is_active, is_superuser, title, last_login, groups, attributes
		   FROM %s.%s WHERE %s`,
		s.schema, s.view, strings.Join(clauses, " AND "),
	)

	var user model.UserRecord
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&user.UserID,
		&user.Username,
		&user.Password,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Enabled,
		&user.Superuser,
		&user.Title,
		&user.LastLogin,
		&user.Groups,
		&user.Attributes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gk_errors.Wrapf(gk_errors.ErrUserNotFound, "user %v doesn't exist", filters)
	}
	if err != nil {
		logger.Error("Failed to query user record", zap.Error(err))
		return nil, fmt.Errorf("failed to query user record: %w", err)
	}
	return &user, nil
}

// GetKey returns the non-revoked API key for (userID, deviceID), or nil
// when no such key exists.
func (s *PostgresUserStore) GetKey(ctx context.Context, userID int64, deviceID string) (*model.APIKeyRecord, error) {
	query := fmt.Sprintf(
		`SELECT user_id, name, device_id, token
		   FROM %s.api_keys
		  WHERE user_id = $1 AND device_id = $2 AND revoked = FALSE`,
		s.schema,
	)
	var key model.APIKeyRecord
	err := s.pool.QueryRow(ctx, query, userID, deviceID).Scan(
		&key.UserID,
		&key.Name,
		&key.DeviceID,
		&key.Token,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.Error("Failed to query API key", zap.Error(err))
		return nil, fmt.Errorf("failed to query API key: %w", err)
	}
	return &key, nil
}
