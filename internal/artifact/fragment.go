package artifact

import (
	"fmt"
	"strings"
)

type FragmentAction string

const (
	ActionCreate FragmentAction = "create"
	ActionModify FragmentAction = "modify"
	ActionDelete FragmentAction = "delete"
)

// Fragment is one unit of generated output. Fragments are applied in order.
// Content is nil when the producer omitted it, which is an input error for create and modify.
type Fragment struct {
	Path    string         `json:"path" yaml:"path"`
	Action  FragmentAction `json:"action" yaml:"action"`
	Content *string        `json:"content,omitempty" yaml:"content,omitempty"`
}

// NewFragment builds a create fragment with content.
func NewFragment(path, content string) Fragment {
	return Fragment{Path: path, Action: ActionCreate, Content: &content}
}

// DeleteFragment builds a delete fragment.
func DeleteFragment(path string) Fragment {
	return Fragment{Path: path, Action: ActionDelete}
}

// NormalizedAction maps an empty action to create.
func (f Fragment) NormalizedAction() (FragmentAction, error) {
	switch FragmentAction(strings.ToLower(strings.TrimSpace(string(f.Action)))) {
	case "", ActionCreate:
		return ActionCreate, nil
	case ActionModify, "update":
		return ActionModify, nil
	case ActionDelete, "remove":
		return ActionDelete, nil
	default:
		return "", fmt.Errorf("unknown fragment action %q", f.Action)
	}
}
