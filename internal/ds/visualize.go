package ds

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
)

// Visualize renders the dependency graph as an indented text tree, roots
// first, with each node's status and unmet dependency count. The output is a
// plain string; callers decide where it goes.
func (d *DAG) Visualize() string {
	if len(d.arena) == 0 {
		return "(empty dag)"
	}

	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedLight)

	roots := make([]string, 0, len(d.arena))
	for i := range d.arena {
		if len(d.arena[i].Dependencies) == 0 {
			roots = append(roots, d.arena[i].TaskID)
		}
	}
	sort.Strings(roots)

	visited := make(map[string]bool, len(d.arena))
	for _, root := range roots {
		d.renderNode(lw, root, visited)
	}
	// Nodes only reachable through edges from a visited node are covered
	// above; anything left (shouldn't happen in an acyclic graph built via
	// Add/AddEdge) is listed flat so the rendering never hides an item.
	for i := range d.arena {
		if !visited[d.arena[i].TaskID] {
			lw.AppendItem(d.nodeLabel(d.arena[i].TaskID))
			visited[d.arena[i].TaskID] = true
		}
	}
	return lw.Render()
}

func (d *DAG) renderNode(lw list.Writer, taskID string, visited map[string]bool) {
	idx, ok := d.index[taskID]
	if !ok {
		return
	}
	if visited[taskID] {
		lw.AppendItem(taskID + " (see above)")
		return
	}
	visited[taskID] = true
	lw.AppendItem(d.nodeLabel(taskID))

	deps := append([]string(nil), d.arena[idx].Dependents...)
	sort.Strings(deps)
	if len(deps) > 0 {
		lw.Indent()
		for _, dep := range deps {
			d.renderNode(lw, dep, visited)
		}
		lw.UnIndent()
	}
}

func (d *DAG) nodeLabel(taskID string) string {
	idx := d.index[taskID]
	item := d.arena[idx]
	label := fmt.Sprintf("%s [%s]", item.TaskID, item.Status)
	unmet := 0
	for _, dep := range item.Dependencies {
		di, ok := d.index[dep]
		if !ok || d.arena[di].Status != StatusCompleted {
			unmet++
		}
	}
	if unmet > 0 {
		label += fmt.Sprintf(" (waiting on %d)", unmet)
	}
	return strings.TrimSpace(label)
}
