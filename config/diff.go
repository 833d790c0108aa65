package config

import "reflect"

// ChangeKind classifies one difference between two Documents.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "updated"
)

// Change is one named difference found by Diff.
type Change struct {
	Kind ChangeKind
	Path string
}

// Diff compares two validated Documents and reports structural changes, so
// a reload can be checked for idempotence: Diff(d, d) must always return
// nil — configuration reload is idempotent.
func Diff(prev, next Document) []Change {
	var changes []Change

	changes = append(changes, diffProviders(prev.Providers, next.Providers)...)
	changes = append(changes, diffPipelines(prev.Pipelines, next.Pipelines)...)
	changes = append(changes, diffContexts(prev.Contexts, next.Contexts)...)
	changes = append(changes, diffTools(prev.Tools, next.Tools)...)

	if !reflect.DeepEqual(prev.Telephony, next.Telephony) {
		changes = append(changes, Change{Kind: ChangeUpdated, Path: "telephony"})
	}
	if prev.MaxActiveCalls != next.MaxActiveCalls {
		changes = append(changes, Change{Kind: ChangeUpdated, Path: "max_active_calls"})
	}
	return changes
}

func diffProviders(prev, next []ProviderSpec) []Change {
	prevByName := make(map[string]ProviderSpec, len(prev))
	for _, p := range prev {
		prevByName[p.Name] = p
	}
	nextByName := make(map[string]ProviderSpec, len(next))
	for _, p := range next {
		nextByName[p.Name] = p
	}

	var changes []Change
	for name, p := range nextByName {
		old, existed := prevByName[name]
		if !existed {
			changes = append(changes, Change{Kind: ChangeAdded, Path: "providers." + name})
			continue
		}
		if !reflect.DeepEqual(old, p) {
			changes = append(changes, Change{Kind: ChangeUpdated, Path: "providers." + name})
		}
	}
	for name := range prevByName {
		if _, stillThere := nextByName[name]; !stillThere {
			changes = append(changes, Change{Kind: ChangeRemoved, Path: "providers." + name})
		}
	}
	return changes
}

func diffPipelines(prev, next []PipelineSpec) []Change {
	prevByName := make(map[string]PipelineSpec, len(prev))
	for _, p := range prev {
		prevByName[p.Name] = p
	}
	nextByName := make(map[string]PipelineSpec, len(next))
	for _, p := range next {
		nextByName[p.Name] = p
	}

	var changes []Change
	for name, p := range nextByName {
		old, existed := prevByName[name]
		if !existed {
			changes = append(changes, Change{Kind: ChangeAdded, Path: "pipelines." + name})
			continue
		}
		if !reflect.DeepEqual(old, p) {
			changes = append(changes, Change{Kind: ChangeUpdated, Path: "pipelines." + name})
		}
	}
	for name := range prevByName {
		if _, stillThere := nextByName[name]; !stillThere {
			changes = append(changes, Change{Kind: ChangeRemoved, Path: "pipelines." + name})
		}
	}
	return changes
}

func diffContexts(prev, next []ContextSpec) []Change {
	prevByName := make(map[string]ContextSpec, len(prev))
	for _, c := range prev {
		prevByName[c.Name] = c
	}
	nextByName := make(map[string]ContextSpec, len(next))
	for _, c := range next {
		nextByName[c.Name] = c
	}

	var changes []Change
	for name, c := range nextByName {
		old, existed := prevByName[name]
		if !existed {
			changes = append(changes, Change{Kind: ChangeAdded, Path: "contexts." + name})
			continue
		}
		if !reflect.DeepEqual(old, c) {
			changes = append(changes, Change{Kind: ChangeUpdated, Path: "contexts." + name})
		}
	}
	for name := range prevByName {
		if _, stillThere := nextByName[name]; !stillThere {
			changes = append(changes, Change{Kind: ChangeRemoved, Path: "contexts." + name})
		}
	}
	return changes
}

func diffTools(prev, next []ToolSpec) []Change {
	prevByName := make(map[string]ToolSpec, len(prev))
	for _, t := range prev {
		prevByName[t.Name] = t
	}
	nextByName := make(map[string]ToolSpec, len(next))
	for _, t := range next {
		nextByName[t.Name] = t
	}

	var changes []Change
	for name, t := range nextByName {
		old, existed := prevByName[name]
		if !existed {
			changes = append(changes, Change{Kind: ChangeAdded, Path: "tools." + name})
			continue
		}
		if !reflect.DeepEqual(old, t) {
			changes = append(changes, Change{Kind: ChangeUpdated, Path: "tools." + name})
		}
	}
	for name := range prevByName {
		if _, stillThere := nextByName[name]; !stillThere {
			changes = append(changes, Change{Kind: ChangeRemoved, Path: "tools." + name})
		}
	}
	return changes
}
