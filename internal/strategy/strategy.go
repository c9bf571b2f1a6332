package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raghavared/agent-maestro/internal/ds"
)

// Strategy is the immutable policy bound to a session: which container kind
// it uses, which commands it accepts, and which item status transitions it
// permits. Instances are frozen on registration and never mutated.
type Strategy struct {
	ID               string                            `json:"id"`
	Description      string                            `json:"description,omitempty"`
	Kind             ds.Kind                           `json:"data_structure_kind"`
	CommandNamespace string                            `json:"command_namespace"`
	AllowedCommands  []string                          `json:"allowed_commands"`
	Transitions      map[ds.ItemStatus][]ds.ItemStatus `json:"status_transitions"`
	IsDefault        bool                              `json:"is_default,omitempty"`
}

func (s Strategy) AllowsCommand(namespace, verb string) bool {
	if namespace != s.CommandNamespace {
		return false
	}
	for _, v := range s.AllowedCommands {
		if v == verb {
			return true
		}
	}
	return false
}

func (s Strategy) AllowsTransition(from, to ds.ItemStatus) bool {
	for _, t := range s.Transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the permitted target statuses from a given status.
func (s Strategy) AllowedFrom(from ds.ItemStatus) []ds.ItemStatus {
	return append([]ds.ItemStatus(nil), s.Transitions[from]...)
}

// CommandList renders the full allowed command set in the surface shape,
// e.g. "queue {top,start,complete,fail,skip,list,add}". Used to make
// rejections self-documenting.
func (s Strategy) CommandList() string {
	verbs := append([]string(nil), s.AllowedCommands...)
	sort.Strings(verbs)
	return fmt.Sprintf("%s {%s}", s.CommandNamespace, strings.Join(verbs, ","))
}

func (s Strategy) clone() Strategy {
	out := s
	out.AllowedCommands = append([]string(nil), s.AllowedCommands...)
	if s.Transitions != nil {
		out.Transitions = make(map[ds.ItemStatus][]ds.ItemStatus, len(s.Transitions))
		for from, tos := range s.Transitions {
			out.Transitions[from] = append([]ds.ItemStatus(nil), tos...)
		}
	}
	return out
}
