package validator

import "github.com/aqakit/brain/pkg/utdl"

// depGraph is the dependency graph of a plan, represented as ordered IDs
// plus adjacency lists keyed by step ID. Edges point from a step to the
// steps it depends on.
type depGraph struct {
	ids       []string
	adjacency map[string][]string
}

func buildDepGraph(steps []utdl.Step) *depGraph {
	g := &depGraph{
		ids:       make([]string, 0, len(steps)),
		adjacency: make(map[string][]string, len(steps)),
	}
	for _, s := range steps {
		// Duplicate IDs are reported separately; first occurrence wins here.
		if _, seen := g.adjacency[s.ID]; seen {
			continue
		}
		g.ids = append(g.ids, s.ID)
		g.adjacency[s.ID] = s.DependsOn
	}
	return g
}

// Node colors for cycle detection.
const (
	colorWhite = 0 // unvisited
	colorGray  = 1 // on the current DFS path
	colorBlack = 2 // fully explored
)

// findCycle runs an iterative three-color DFS and returns the first cycle
// found as a closed path (first and last element equal), or nil. An
// explicit stack avoids recursion depth limits on large plans.
func (g *depGraph) findCycle() []string {
	color := make(map[string]int, len(g.ids))

	type frame struct {
		id   string
		next int
	}

	for _, start := range g.ids {
		if color[start] != colorWhite {
			continue
		}

		stack := []frame{{id: start}}
		path := []string{start}
		color[start] = colorGray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.adjacency[top.id]

			advanced := false
			for top.next < len(deps) {
				dep := deps[top.next]
				top.next++

				if _, known := g.adjacency[dep]; !known {
					// Unknown dependency, reported elsewhere.
					continue
				}
				switch color[dep] {
				case colorGray:
					// Back edge: close the cycle from dep's position on the path.
					for i, id := range path {
						if id == dep {
							cycle := append([]string{}, path[i:]...)
							return append(cycle, dep)
						}
					}
				case colorWhite:
					color[dep] = colorGray
					stack = append(stack, frame{id: dep})
					path = append(path, dep)
					advanced = true
				}
				if advanced {
					break
				}
			}

			if !advanced {
				color[top.id] = colorBlack
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
			}
		}
	}
	return nil
}

// rootCount returns how many steps have no dependencies. All of them become
// runnable at once, so this is the plan's parallelism estimate.
func (g *depGraph) rootCount() int {
	n := 0
	for _, id := range g.ids {
		if len(g.adjacency[id]) == 0 {
			n++
		}
	}
	return n
}
