// Package permission tracks the runtime capabilities reminders depend on.
package permission

import (
	"fmt"
	"strings"
	"sync"
)

// State is the tri-state answer to a capability check
type State int

const (
	Undetermined State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

// ParseState reads a state from config text
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undetermined", "ask":
		return Undetermined, nil
	case "granted", "allow", "true":
		return Granted, nil
	case "denied", "deny", "false":
		return Denied, nil
	}
	return Undetermined, fmt.Errorf("unknown permission state %q", s)
}

// Capability names a gated host facility
type Capability string

const (
	Notifications Capability = "post_notifications"
	ExactAlarm    Capability = "schedule_exact_alarm"
)

// Checker answers capability checks
type Checker interface {
	Check(c Capability) State
}

// Gate is a Checker that can also ask the user to grant a capability
type Gate interface {
	Checker
	Request(c Capability)
}

// Registry is an in-memory Gate. Request calls OnRequest, which is where the
// host redirects the user to its settings; the outcome arrives later via Set.
type Registry struct {
	mu        sync.RWMutex
	states    map[Capability]State
	OnRequest func(c Capability)
}

// NewRegistry creates a Registry with the given initial states
func NewRegistry(initial map[Capability]State) *Registry {
	r := &Registry{states: make(map[Capability]State)}
	for c, s := range initial {
		r.states[c] = s
	}
	return r
}

// Check returns the current state of c
func (r *Registry) Check(c Capability) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[c]
}

// Set records the user's answer for c
func (r *Registry) Set(c Capability, s State) {
	r.mu.Lock()
	r.states[c] = s
	r.mu.Unlock()
}

// Request asks for c unless it is already granted
func (r *Registry) Request(c Capability) {
	if r.Check(c) == Granted {
		return
	}
	if r.OnRequest != nil {
		r.OnRequest(c)
	}
}
