package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/models"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = docstore.ErrNotFound
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// storeError wraps a database failure so callers can match both models.ErrStore and the cause.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, ErrConflict)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
}
