package agent

import (
	"fmt"
	"sync"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

// Registry holds the running set of role agents for one workflow and is
// the Orchestrator's handle for dispatching work to a role by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[stage.Role]*Agent
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[stage.Role]*Agent)}
}

// NewDefaultRegistry builds and registers (but does not Start) the full
// seven-role roster described in spec §4.4, sharing the given Deps.
func NewDefaultRegistry(d Deps) *Registry {
	r := NewRegistry()
	r.Register(NewProjectManager(d))
	r.Register(NewRequirementsAnalyst(d))
	r.Register(NewArchitect(d))
	r.Register(NewUXUIDesigner(d))
	r.Register(NewDeveloper(d))
	r.Register(NewTestEngineer(d))
	r.Register(NewQualityExpert(d))
	return r
}

// Register adds or replaces the agent for its role.
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Role()] = a
}

// Get returns the agent registered for role, if any.
func (r *Registry) Get(role stage.Role) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[role]
	return a, ok
}

// MustGet is like Get but panics if role has no registered agent; for use
// only where the caller has already validated the role is one of the
// fixed seven.
func (r *Registry) MustGet(role stage.Role) *Agent {
	a, ok := r.Get(role)
	if !ok {
		panic(fmt.Sprintf("agent: no agent registered for role %q", role))
	}
	return a
}

// All returns every registered agent, in no particular order.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// ForStage returns the registered agents the Orchestrator should dispatch
// directly for s (see Config.DispatchStages) - not necessarily every
// agent whose OnStage hook reacts to s.
func (r *Registry) ForStage(s stage.Stage) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Agent
	for _, a := range r.agents {
		for _, ds := range a.dispatchStages {
			if ds == s {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// StartAll subscribes every registered agent to the bus.
func (r *Registry) StartAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if err := a.Start(); err != nil {
			return err
		}
	}
	return nil
}

// StopAll unsubscribes every registered agent from the bus.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		a.Stop()
	}
}
