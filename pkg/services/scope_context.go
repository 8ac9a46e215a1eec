package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-renewals/pkg/database"
)

// ScopeFunc acquires a scoped database connection for background work.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type ScopeFunc func(ctx context.Context) (context.Context, func(), error)

// NewScopeFunc creates a ScopeFunc that uses the given database.
func NewScopeFunc(db *database.DB) ScopeFunc {
	return database.NewScopeProvider(db).WithScope
}
