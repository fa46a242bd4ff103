package domain

import (
	"sort"
	"strings"
)

// HierarchyNode is one node of the nested tree the query service returns
// for a full-hierarchy query. Children are keyed by the child's display
// name; a nil Children map marks a leaf of the configured dimension list,
// not necessarily a leaf of the underlying data.
type HierarchyNode struct {
	Metrics   Metrics                   `json:"_metrics"`
	Dimension Dimension                 `json:"_dimension"`
	Children  map[string]*HierarchyNode `json:"_children"`
}

// Hierarchy is the full-hierarchy wire payload: every combination of the
// configured dimensions for one date range, fetched in one request.
type Hierarchy struct {
	Dimensions []Dimension               `json:"dimensions"`
	Nodes      map[string]*HierarchyNode `json:"hierarchy"`
	StartDate  string                    `json:"startDate"`
	EndDate    string                    `json:"endDate"`
}

// RowsAtPath walks the tree along the drill path and maps every child at
// the reached level to a Row. An absent branch or a childless intermediate
// node yields an empty result; callers treat that as a cache miss and fall
// back to a fresh per-level fetch. The tree is never mutated.
func (h *Hierarchy) RowsAtPath(path []DimensionFilter) []Row {
	level := 0
	current := h.Nodes

	for _, filter := range path {
		node, ok := current[filter.Value]
		if !ok || node.Children == nil {
			return nil
		}
		current = node.Children
		level++
	}

	lastLevel := len(h.Dimensions) - 1
	prefix := make([]string, 0, len(path))
	for _, f := range path {
		prefix = append(prefix, f.Value)
	}

	rows := make([]Row, 0, len(current))
	for name, node := range current {
		dim := node.Dimension
		if !dim.IsValid() && level < len(h.Dimensions) {
			dim = h.Dimensions[level]
		}

		filterPath := make([]DimensionFilter, 0, len(path)+1)
		filterPath = append(filterPath, path...)
		filterPath = append(filterPath, DimensionFilter{Dimension: dim, Value: name})

		row := Row{
			ID:            strings.Join(append(append([]string{}, prefix...), name), "|"),
			Name:          name,
			Level:         level,
			DimensionType: dim,
			HasChild:      level < lastLevel,
			FilterPath:    filterPath,
			Metrics:       node.Metrics,
		}
		row.Recompute()
		rows = append(rows, row)
	}

	// the query service orders level results by revenue descending
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Revenue != rows[j].Revenue {
			return rows[i].Revenue > rows[j].Revenue
		}
		return rows[i].Name < rows[j].Name
	})

	return rows
}
