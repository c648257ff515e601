package quote

import (
	"fmt"
	"sort"
	"strings"
)

// PathFinder finds swap routes over the configured pair graph
type PathFinder struct {
	adjacency map[string][]string
	hub       string
}

// NewPathFinder builds the graph from "A-B" pair names. Neighbors are
// explored hub first so that equal-length routes prefer the hub token.
func NewPathFinder(pairs []string, hub string) (*PathFinder, error) {
	hub = strings.ToUpper(hub)
	adjacency := make(map[string][]string)
	for _, pair := range pairs {
		parts := strings.Split(strings.ToUpper(pair), "-")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == parts[1] {
			return nil, fmt.Errorf("invalid pair %q", pair)
		}
		adjacency[parts[0]] = append(adjacency[parts[0]], parts[1])
		adjacency[parts[1]] = append(adjacency[parts[1]], parts[0])
	}
	for token, neighbors := range adjacency {
		sort.Slice(neighbors, func(i, j int) bool {
			if (neighbors[i] == hub) != (neighbors[j] == hub) {
				return neighbors[i] == hub
			}
			return neighbors[i] < neighbors[j]
		})
		adjacency[token] = neighbors
	}
	return &PathFinder{adjacency: adjacency, hub: hub}, nil
}

// Route returns the shortest route from one symbol to another, inclusive
func (p *PathFinder) Route(from, to string) ([]string, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return nil, ErrSameToken
	}
	if _, ok := p.adjacency[from]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, from)
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == to {
			break
		}
		for _, next := range p.adjacency[current] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = current
			queue = append(queue, next)
		}
	}

	if _, ok := prev[to]; !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, from, to)
	}
	var route []string
	for at := to; at != ""; at = prev[at] {
		route = append([]string{at}, route...)
	}
	return route, nil
}
