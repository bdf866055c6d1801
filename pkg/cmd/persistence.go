package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/persistence/file"
	"github.com/helixflow/helixflow/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence layer from a database URL. A
// postgres:// URL selects PostgreSQL; anything else is treated as a directory
// path for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return store
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
