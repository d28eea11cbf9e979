// Package file provides file-based persistence for development and tests.
// Each collection lives under its own subdirectory of the root as one JSON
// document per row.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/guildflow/guildflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	variableRepo  *VariableRepository
	executionRepo *ExecutionLogRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		variableRepo:  NewVariableRepository(cleanRoot),
		executionRepo: NewExecutionLogRepository(cleanRoot),
	}
}

func (fp *Persistence) Workflows() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) Variables() persistence.VariableRepository {
	return fp.variableRepo
}

func (fp *Persistence) ExecutionLogs() persistence.ExecutionLogRepository {
	return fp.executionRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup; nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
