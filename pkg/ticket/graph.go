package ticket

import (
	"fmt"
	"slices"
	"strings"
)

// Rule resets a dependent setting after the setting it depends on has changed.
type Rule struct {
	From Name
	To   Name

	// Apply adjusts the dependent setting and reports whether it changed.
	Apply func(s *Settings, env Env) bool
}

// Graph holds the static dependencies between settings.
type Graph struct {
	rules map[Name][]Rule
}

// NewGraph builds a dependency graph and checks that it is acyclic.
func NewGraph(rules ...Rule) (*Graph, error) {
	g := &Graph{
		rules: make(map[Name][]Rule, len(rules)),
	}

	for _, r := range rules {
		if r.From != DestinationNode && !IsKnown(r.From) {
			return nil, fmt.Errorf("%w: rule source %q", ErrUnknownSetting, r.From)
		}
		if !IsKnown(r.To) {
			return nil, fmt.Errorf("%w: rule target %q", ErrUnknownSetting, r.To)
		}
		if r.Apply == nil {
			return nil, fmt.Errorf("rule %v -> %v has no Apply func", r.From, r.To)
		}

		g.rules[r.From] = append(g.rules[r.From], r)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Graph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[Name]int, len(g.rules))
	var path []Name

	var visit func(n Name) error
	visit = func(n Name) error {
		switch state[n] {
		case visiting:
			cycle := make([]string, 0, len(path)+1)
			for _, p := range path {
				cycle = append(cycle, string(p))
			}
			cycle = append(cycle, string(n))
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
		case done:
			return nil
		}

		state[n] = visiting
		path = append(path, n)
		for _, r := range g.rules[n] {
			if err := visit(r.To); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[n] = done

		return nil
	}

	for n := range g.rules {
		if err := visit(n); err != nil {
			return err
		}
	}

	return nil
}

// Order sorts names so that every setting comes after the settings whose changes can reset it.
// Unrelated names keep their relative order.
func (g *Graph) Order(names []Name) []Name {
	remaining := slices.Clone(names)
	result := make([]Name, 0, len(names))

	for len(remaining) > 0 {
		next := 0
		for i, n := range remaining {
			if !g.resetByAny(n, remaining) {
				next = i
				break
			}
		}

		result = append(result, remaining[next])
		remaining = slices.Delete(remaining, next, next+1)
	}

	return result
}

func (g *Graph) resetByAny(n Name, among []Name) bool {
	for _, m := range among {
		if m != n && g.reaches(m, n) {
			return true
		}
	}
	return false
}

func (g *Graph) reaches(from, to Name) bool {
	for _, r := range g.rules[from] {
		if r.To == to || g.reaches(r.To, to) {
			return true
		}
	}
	return false
}

// Dependents returns the names directly reset by a change of n.
func (g *Graph) Dependents(n Name) []Name {
	result := make([]Name, 0, len(g.rules[n]))
	for _, r := range g.rules[n] {
		result = append(result, r.To)
	}
	return result
}

// Cascade applies every rule reachable from the changed names until settled.
// It returns the changed names followed by the names of the dependents that were reset.
func (g *Graph) Cascade(s *Settings, env Env, changed ...Name) []Name {
	result := append([]Name(nil), changed...)

	queue := append([]Name(nil), changed...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, r := range g.rules[n] {
			if r.Apply(s, env) {
				result = append(result, r.To)
				queue = append(queue, r.To)
			}
		}
	}

	return result
}

// DefaultRules are the derived-default policies between print settings.
func DefaultRules() []Rule {
	resetCustomMargins := func(s *Settings, _ Env) bool {
		if s.Margins != MarginsCustom {
			return false
		}
		s.Margins = MarginsDefault
		return true
	}

	return []Rule{
		{
			From: PagesPerSheet,
			To:   Margins,
			Apply: func(s *Settings, _ Env) bool {
				if s.PagesPerSheet == 1 || s.Margins == MarginsDefault {
					return false
				}
				s.Margins = MarginsDefault
				return true
			},
		},
		{From: Layout, To: Margins, Apply: resetCustomMargins},
		{From: MediaSize, To: Margins, Apply: resetCustomMargins},
		{
			From: DestinationNode,
			To:   MediaSize,
			Apply: func(s *Settings, env Env) bool {
				caps := env.caps()
				if current, ok := caps.FindMediaSize(s.MediaSize); ok {
					changed := current != s.MediaSize
					s.MediaSize = current
					return changed
				}

				size, _ := caps.DefaultMediaSize()
				changed := size != s.MediaSize
				s.MediaSize = size
				return changed
			},
		},
		{
			From: DestinationNode,
			To:   Color,
			Apply: func(s *Settings, env Env) bool {
				caps := env.caps()
				if caps.SupportsColor(s.Color) {
					return false
				}
				s.Color = caps.DefaultColor()
				return true
			},
		},
		{
			From: DestinationNode,
			To:   Duplex,
			Apply: func(s *Settings, env Env) bool {
				caps := env.caps()
				if caps.SupportsDuplex(s.Duplex.Type()) {
					return false
				}
				s.Duplex = DuplexModeOf(caps.DefaultDuplex())
				return true
			},
		},
		{
			From: DestinationNode,
			To:   DPI,
			Apply: func(s *Settings, env Env) bool {
				caps := env.caps()
				if current, ok := caps.FindDPI(s.DPI); ok {
					changed := current != s.DPI
					s.DPI = current
					return changed
				}

				dpi, _ := caps.DefaultDPI()
				changed := dpi != s.DPI
				s.DPI = dpi
				return changed
			},
		},
		{
			From: DestinationNode,
			To:   Copies,
			Apply: func(s *Settings, env Env) bool {
				if s.Copies >= 1 && s.Copies <= env.caps().MaxCopies() {
					return false
				}
				s.Copies = env.caps().DefaultCopies()
				return true
			},
		},
		{
			From: DestinationNode,
			To:   Collate,
			Apply: func(s *Settings, env Env) bool {
				if env.caps().Collate != nil || !s.Collate {
					return false
				}
				s.Collate = false
				return true
			},
		},
	}
}

var defaultGraph = mustGraph(DefaultRules()...)

func mustGraph(rules ...Rule) *Graph {
	g, err := NewGraph(rules...)
	if err != nil {
		panic(err)
	}
	return g
}

// DefaultGraph returns the graph built from DefaultRules.
func DefaultGraph() *Graph {
	return defaultGraph
}
