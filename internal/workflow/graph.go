package workflow

// Graph is the immutable-after-build dependency structure of one workflow.
// Readiness bookkeeping (remaining incomplete dependencies per task) is
// mutated only by the Scheduler under the per-workflow lock.
type Graph struct {
	tasks map[string]*Task
	order []string // insertion order, used as the deterministic tie-break

	dependents map[string][]string // dep id -> task ids waiting on it
	remaining  map[string]int      // task id -> incomplete dependency count
}

// NewGraph validates the dependency relation and builds the graph. It fails
// with DanglingError when a dependency references a task outside the set and
// with CycleError when the relation is not acyclic. No partial graph is
// returned on error.
func NewGraph(tasks []*Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*Task, len(tasks)),
		order:      make([]string, 0, len(tasks)),
		dependents: make(map[string][]string),
		remaining:  make(map[string]int, len(tasks)),
	}
	for _, t := range tasks {
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return nil, &CycleError{Path: []string{t.ID, t.ID}}
			}
			if _, ok := g.tasks[dep]; !ok {
				return nil, &DanglingError{TaskID: t.ID, DepID: dep}
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
			g.remaining[t.ID]++
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	return g, nil
}

// findCycle runs Kahn's algorithm over a scratch in-degree copy. It returns
// nil when the graph is acyclic, otherwise a best-effort cycle path.
func (g *Graph) findCycle() []string {
	indeg := make(map[string]int, len(g.tasks))
	for id := range g.tasks {
		indeg[id] = g.remaining[id]
	}

	queue := make([]string, 0, len(g.tasks))
	for _, id := range g.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		processed++
		for _, dep := range g.dependents[cur] {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if processed == len(g.tasks) {
		return nil
	}

	// Remaining nodes with positive in-degree form the cycle set; walk one
	// cycle through it for the error message.
	inCycle := make(map[string]bool)
	for id, d := range indeg {
		if d > 0 {
			inCycle[id] = true
		}
	}
	return g.walkCycle(inCycle)
}

func (g *Graph) walkCycle(inCycle map[string]bool) []string {
	var start string
	for _, id := range g.order {
		if inCycle[id] {
			start = id
			break
		}
	}
	if start == "" {
		return nil
	}
	// Follow dependency edges inside the cycle set until a node repeats.
	seen := map[string]int{}
	path := []string{}
	cur := start
	for {
		if pos, ok := seen[cur]; ok {
			return append(path[pos:], cur)
		}
		seen[cur] = len(path)
		path = append(path, cur)
		next := ""
		for _, dep := range g.tasks[cur].Dependencies {
			if inCycle[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			return path
		}
		cur = next
	}
}

// Task returns the task with the given id, or nil.
func (g *Graph) Task(id string) *Task { return g.tasks[id] }

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.order) }

// Tasks returns the tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Ready returns pending tasks whose dependencies have all completed, in
// insertion order.
func (g *Graph) Ready() []*Task {
	var out []*Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status == TaskPending && g.remaining[id] == 0 {
			out = append(out, t)
		}
	}
	return out
}

// MarkCompleted decrements the remaining-dependency counter of every task
// waiting on id. Call exactly once per completed task.
func (g *Graph) MarkCompleted(id string) {
	for _, dep := range g.dependents[id] {
		if g.remaining[dep] > 0 {
			g.remaining[dep]--
		}
	}
}
