package actions

import (
	"context"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/guildflow/guildflow/pkg/template"
)

// StoredVariables adapts the persistence variable contract to the resolver's
// lookup interface, applying the workflow → channel → user → server
// precedence chain.
type StoredVariables struct {
	repo persistence.VariableRepository
}

func NewStoredVariables(repo persistence.VariableRepository) *StoredVariables {
	return &StoredVariables{repo: repo}
}

var _ template.VariableSource = (*StoredVariables)(nil)

func (s *StoredVariables) ResolveVariable(ctx context.Context, serverID, workflowID, channelID, userID, name string) (string, bool, error) {
	rows, err := s.repo.Find(ctx, serverID, name)
	if err != nil {
		return "", false, err
	}

	var best *models.WorkflowVariable

	bestRank := 0

	for _, row := range rows {
		rank := variableRank(row, workflowID, channelID, userID)
		if rank > bestRank {
			best = row
			bestRank = rank
		}
	}

	if best == nil {
		return "", false, nil
	}

	return best.Value, true, nil
}

// variableRank orders candidate rows: workflow-bound beats channel-scoped
// beats user-scoped beats server-wide; rows bound to another workflow or
// another channel/user never match.
func variableRank(row *models.WorkflowVariable, workflowID, channelID, userID string) int {
	if row.WorkflowID != "" && row.WorkflowID != workflowID {
		return 0
	}

	switch row.Scope {
	case models.ScopeChannel:
		if row.ScopeID != channelID {
			return 0
		}
	case models.ScopeUser:
		if row.ScopeID != userID {
			return 0
		}
	}

	rank := 1 // server-wide baseline

	switch row.Scope {
	case models.ScopeChannel:
		rank = 3
	case models.ScopeUser:
		rank = 2
	}

	if row.WorkflowID != "" {
		rank += 4
	}

	return rank
}
