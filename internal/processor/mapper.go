package processor

import (
	"fmt"
	"strings"

	"graph-cdc/internal/config"
	"graph-cdc/internal/models"
)

// Mapper turns captured row images into graph elements. A table maps to a
// node labeled with the table name unless a relationship rule names it, in
// which case its rows become relationships between the nodes referenced by
// the configured start and end columns.
type Mapper struct {
	idColumn      string
	relationships []config.RelationshipRule
}

// NewMapper creates a mapper from the graph section of the config.
func NewMapper(cfg config.GraphConfig) *Mapper {
	return &Mapper{
		idColumn:      cfg.IDColumn,
		relationships: cfg.Relationships,
	}
}

// MapRow builds a SourceElement from one row image. columns and values are
// parallel slices in table column order; property insertion order follows
// column order.
func (m *Mapper) MapRow(database, table string, columns []string, values []interface{}) (models.SourceElement, error) {
	if rule := m.relationshipRule(database, table); rule != nil {
		return m.mapRelation(table, columns, values, rule)
	}
	return m.mapNode(table, columns, values)
}

func (m *Mapper) mapNode(table string, columns []string, values []interface{}) (models.SourceElement, error) {
	id, found := "", false
	props := models.NewPropertyMap()
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		if strings.EqualFold(col, m.idColumn) {
			id = formatID(values[i])
			found = true
			continue
		}
		props.Set(col, values[i])
	}
	if !found {
		return nil, fmt.Errorf("table %s has no %q column to use as node id", table, m.idColumn)
	}

	return models.Node{ID: id, Labels: []string{table}, Properties: props}, nil
}

func (m *Mapper) mapRelation(table string, columns []string, values []interface{}, rule *config.RelationshipRule) (models.SourceElement, error) {
	label := rule.Label
	if label == "" {
		label = table
	}

	var id, startID, endID string
	foundID, foundStart, foundEnd := false, false, false
	props := models.NewPropertyMap()
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		switch {
		case strings.EqualFold(col, m.idColumn):
			id = formatID(values[i])
			foundID = true
		case strings.EqualFold(col, rule.StartColumn):
			startID = formatID(values[i])
			foundStart = true
		case strings.EqualFold(col, rule.EndColumn):
			endID = formatID(values[i])
			foundEnd = true
		default:
			props.Set(col, values[i])
		}
	}
	if !foundStart || !foundEnd {
		return nil, fmt.Errorf("table %s is missing relationship columns %q/%q", table, rule.StartColumn, rule.EndColumn)
	}
	if !foundID {
		// Join tables often have no surrogate key; derive a stable id from
		// the endpoints.
		id = startID + "-" + endID
	}

	return models.Relation{
		ID:         id,
		Labels:     []string{label},
		Properties: props,
		StartID:    startID,
		EndID:      endID,
	}, nil
}

func (m *Mapper) relationshipRule(database, table string) *config.RelationshipRule {
	for i := range m.relationships {
		rule := &m.relationships[i]
		if rule.Database != "" && !strings.EqualFold(rule.Database, database) {
			continue
		}
		if strings.EqualFold(rule.Table, table) {
			return rule
		}
	}
	return nil
}

// formatID renders a key column value as the element id string.
func formatID(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
