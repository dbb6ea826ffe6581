package graph

import (
	"fmt"
	"slices"
	"strings"
)

type Node interface {
	GetName() string
	GetDependencies() []string
}

// TopologicalSort orders nodes so every node comes after its dependencies.
// Ties are broken by name, so the result is stable across runs.
func TopologicalSort(nodes map[string]Node) ([]string, error) {
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	result := make([]string, 0, len(nodes))
	var path []string

	var visit func(string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("cycle detected in dependencies: %s -> %s", strings.Join(path, " -> "), name)
		}

		node, exists := nodes[name]
		if !exists {
			return fmt.Errorf("node %s not found", name)
		}

		visiting[name] = true
		path = append(path, name)

		deps := slices.Clone(node.GetDependencies())
		slices.Sort(deps)
		for _, dep := range deps {
			if _, ok := nodes[dep]; !ok {
				return fmt.Errorf("node %s depends on %s which does not exist", name, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		visiting[name] = false
		visited[name] = true
		result = append(result, name)
		return nil
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}
