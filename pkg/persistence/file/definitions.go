package file

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

const definitionsDir = "definitions"

// DefinitionRepository stores workflow definitions as JSON files.
type DefinitionRepository struct {
	store *store
}

func (r *DefinitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.write(definitionsDir, def.ID, def); err != nil {
		return persistence.NewStoreError("Save", "definition", def.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(_ context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(tenantID, id)
}

func (r *DefinitionRepository) getLocked(tenantID, id string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	err := r.store.read(definitionsDir, id, &def)
	if os.IsNotExist(err) || (err == nil && def.TenantID != tenantID) {
		return nil, persistence.ErrDefinitionNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "definition", id, err)
	}

	return &def, nil
}

func (r *DefinitionRepository) List(_ context.Context, tenantID string, opts persistence.ListDefinitionsOptions) ([]*models.WorkflowDefinition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAll(tenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowDefinition, 0, len(all))

	for _, def := range all {
		if def.DeletedAt != nil {
			continue
		}

		if opts.Category != "" && def.Category != opts.Category {
			continue
		}

		if opts.OnlyPublished && !def.IsPublished {
			continue
		}

		if opts.OnlyActive && !def.IsActive {
			continue
		}

		filtered = append(filtered, def)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Name != filtered[j].Name {
			return filtered[i].Name < filtered[j].Name
		}

		return versionLess(filtered[j].Version, filtered[i].Version)
	})

	return page(filtered, opts.Offset, opts.Limit), nil
}

func (r *DefinitionRepository) LatestVersion(_ context.Context, tenantID, name string) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAll(tenantID)
	if err != nil {
		return "", err
	}

	latest := ""

	for _, def := range all {
		if def.Name != name {
			continue
		}

		if latest == "" || versionLess(latest, def.Version) {
			latest = def.Version
		}
	}

	return latest, nil
}

func (r *DefinitionRepository) Delete(_ context.Context, tenantID, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.getLocked(tenantID, id); err != nil {
		return err
	}

	if err := r.store.remove(definitionsDir, id); err != nil {
		return persistence.NewStoreError("Delete", "definition", id, err)
	}

	return nil
}

func (r *DefinitionRepository) loadAll(tenantID string) ([]*models.WorkflowDefinition, error) {
	ids, err := r.store.ids(definitionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("List", "definition", "", err)
	}

	defs := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		def, err := r.getLocked(tenantID, id)
		if err != nil {
			continue
		}

		defs = append(defs, def)
	}

	return defs, nil
}

// versionLess orders "major.minor[.patch]" strings numerically per segment.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0

		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}

		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}

		if av != bv {
			return av < bv
		}
	}

	return false
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
