// Package file provides a JSON-file persistence implementation for local
// development and tests. One file per entity, filtering in memory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/helixflow/helixflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on a directory tree.
type Persistence struct {
	root string

	definitionRepo    *DefinitionRepository
	executionRepo     *ExecutionRepository
	stepRepo          *StepExecutionRepository
	ruleRepo          *RuleRepository
	ruleExecutionRepo *RuleExecutionRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	store := &store{root: cleanRoot}

	return &Persistence{
		root:              cleanRoot,
		definitionRepo:    &DefinitionRepository{store: store},
		executionRepo:     &ExecutionRepository{store: store},
		stepRepo:          &StepExecutionRepository{store: store},
		ruleRepo:          &RuleRepository{store: store},
		ruleExecutionRepo: &RuleExecutionRepository{store: store},
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitionRepo }

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executionRepo }

func (p *Persistence) Steps() persistence.StepExecutionRepository { return p.stepRepo }

func (p *Persistence) Rules() persistence.RuleRepository { return p.ruleRepo }

func (p *Persistence) RuleExecutions() persistence.RuleExecutionRepository {
	return p.ruleExecutionRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store serializes all reads and writes. Good enough for a dev store; the
// PostgreSQL implementation is the one built for concurrency.
type store struct {
	mu   sync.Mutex
	root string
}

func (s *store) write(dir, id string, value any) error {
	target := filepath.Join(s.root, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", dir, id, err)
	}

	if err := os.WriteFile(filepath.Join(target, id+".json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

// read decodes one entity. Returns os.ErrNotExist when the file is absent.
func (s *store) read(dir, id string, value any) error {
	data, err := os.ReadFile(filepath.Join(s.root, dir, id+".json"))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", dir, id, err)
	}

	return nil
}

func (s *store) remove(dir, id string) error {
	err := os.Remove(filepath.Join(s.root, dir, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s/%s: %w", dir, id, err)
	}

	return err
}

// ids lists the entity ids present in a directory.
func (s *store) ids(dir string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(s.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
