package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// versionOrder sorts "major.minor[.patch]" strings numerically per segment.
const versionOrder = "string_to_array(version, '.')::int[]"

// DefinitionRepository handles workflow definition database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

const definitionColumns = `
	id
  , tenant_id
  , name
  , version
  , category
  , is_active
  , is_published
  , graph
  , trigger_config
  , created_at
  , updated_at
  , published_at
  , deleted_at
`

func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	graph, err := marshalJSON(def.Graph)
	if err != nil {
		return err
	}

	triggerConfig, err := marshalJSON(def.TriggerConfig)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			category = EXCLUDED.category,
			is_active = EXCLUDED.is_active,
			is_published = EXCLUDED.is_published,
			graph = EXCLUDED.graph,
			trigger_config = EXCLUDED.trigger_config,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID,
		def.TenantID,
		def.Name,
		def.Version,
		def.Category,
		def.IsActive,
		def.IsPublished,
		graph,
		triggerConfig,
		def.CreatedAt,
		def.UpdatedAt,
		nullableTime(def.PublishedAt),
		nullableTime(def.DeletedAt),
	)
	if err != nil {
		return persistence.NewStoreError("Save", "definition", def.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE id = $1 AND tenant_id = $2
	`

	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, persistence.NewStoreError("GetByID", "definition", id, err)
	}

	return def, nil
}

func (r *DefinitionRepository) List(ctx context.Context, tenantID string, opts persistence.ListDefinitionsOptions) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`

	args := []any{tenantID}

	if opts.Category != "" {
		args = append(args, opts.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}

	if opts.OnlyPublished {
		query += " AND is_published"
	}

	if opts.OnlyActive {
		query += " AND is_active"
	}

	query += " ORDER BY name ASC, " + versionOrder + " DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "definition", tenantID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "definition", tenantID, err)
		}

		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "definition", tenantID, err)
	}

	return definitions, nil
}

func (r *DefinitionRepository) LatestVersion(ctx context.Context, tenantID, name string) (string, error) {
	query := `
		SELECT version
		FROM workflow_definitions
		WHERE tenant_id = $1 AND name = $2
		ORDER BY ` + versionOrder + ` DESC
		LIMIT 1
	`

	var version string

	err := r.db.QueryRowContext(ctx, query, tenantID, name).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", persistence.NewStoreError("LatestVersion", "definition", name, err)
	}

	return version, nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM workflow_definitions WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return persistence.NewStoreError("Delete", "definition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "definition", id, err)
	}

	if affected == 0 {
		return persistence.ErrDefinitionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		def           models.WorkflowDefinition
		graph         []byte
		triggerConfig []byte
		publishedAt   sql.NullTime
		deletedAt     sql.NullTime
	)

	err := row.Scan(
		&def.ID,
		&def.TenantID,
		&def.Name,
		&def.Version,
		&def.Category,
		&def.IsActive,
		&def.IsPublished,
		&graph,
		&triggerConfig,
		&def.CreatedAt,
		&def.UpdatedAt,
		&publishedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(graph, &def.Graph); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(triggerConfig, &def.TriggerConfig); err != nil {
		return nil, err
	}

	def.PublishedAt = timePtr(publishedAt)
	def.DeletedAt = timePtr(deletedAt)

	return &def, nil
}
