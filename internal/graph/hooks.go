package graph

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Context carries the node's state into tick callbacks.
type Context struct {
	Value    Sample
	NodeKind string
}

// Hook is a callback fired after each produced sample.
type Hook func(*Context)

// Condition gates a conditional hook on the node's current context.
type Condition func(*Context) bool

type conditionalHook struct {
	hook      Hook
	condition Condition
}

// hookSet holds a node's tick callbacks. Mutation happens only on control
// threads under the mutex; the audio path reads copy-on-write slices through
// atomic pointers, ordered by the epoch counter the control side bumps after
// each edit.
type hookSet struct {
	mu          sync.Mutex
	epoch       atomic.Uint64
	hooks       atomic.Pointer[[]Hook]
	conditional atomic.Pointer[[]conditionalHook]
}

// funcKey returns the comparable identity of a callable: its code pointer.
// Two distinct closures over the same function body share a pointer, which
// matches the duplication policy of comparing target type and address.
func funcKey(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func (hs *hookSet) add(hook Hook) bool {
	if hook == nil {
		return false
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()

	current := hs.load()
	key := funcKey(hook)
	for _, existing := range current {
		if funcKey(existing) == key {
			return false
		}
	}

	next := make([]Hook, len(current)+1)
	copy(next, current)
	next[len(current)] = hook
	hs.hooks.Store(&next)
	hs.epoch.Add(1)
	return true
}

func (hs *hookSet) addConditional(hook Hook, condition Condition) bool {
	if hook == nil || condition == nil {
		return false
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()

	current := hs.loadConditional()
	hookKey, condKey := funcKey(hook), funcKey(condition)
	for _, existing := range current {
		if funcKey(existing.hook) == hookKey && funcKey(existing.condition) == condKey {
			return false
		}
	}

	next := make([]conditionalHook, len(current)+1)
	copy(next, current)
	next[len(current)] = conditionalHook{hook: hook, condition: condition}
	hs.conditional.Store(&next)
	hs.epoch.Add(1)
	return true
}

func (hs *hookSet) remove(hook Hook) bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	current := hs.load()
	key := funcKey(hook)
	for i, existing := range current {
		if funcKey(existing) == key {
			next := make([]Hook, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			hs.hooks.Store(&next)
			hs.epoch.Add(1)
			return true
		}
	}
	return false
}

// removeConditional drops every conditional hook registered with the given
// condition.
func (hs *hookSet) removeConditional(condition Condition) bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	current := hs.loadConditional()
	key := funcKey(condition)
	next := make([]conditionalHook, 0, len(current))
	removed := false
	for _, existing := range current {
		if funcKey(existing.condition) == key {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if removed {
		hs.conditional.Store(&next)
		hs.epoch.Add(1)
	}
	return removed
}

func (hs *hookSet) removeAll() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	empty := []Hook{}
	emptyConditional := []conditionalHook{}
	hs.hooks.Store(&empty)
	hs.conditional.Store(&emptyConditional)
	hs.epoch.Add(1)
}

func (hs *hookSet) load() []Hook {
	if p := hs.hooks.Load(); p != nil {
		return *p
	}
	return nil
}

func (hs *hookSet) loadConditional() []conditionalHook {
	if p := hs.conditional.Load(); p != nil {
		return *p
	}
	return nil
}

// OnTick registers a hook fired after each produced sample. Hooks equal to
// an already registered one (by callable identity) are silently deduplicated.
func (c *Core) OnTick(hook Hook) {
	c.hooks.add(hook)
}

// OnTickIf registers a hook fired only when condition holds for the produced
// sample. Exact hook/condition pairs are deduplicated.
func (c *Core) OnTickIf(hook Hook, condition Condition) {
	c.hooks.addConditional(hook, condition)
}

// RemoveHook unregisters a hook by callable identity.
func (c *Core) RemoveHook(hook Hook) bool {
	return c.hooks.remove(hook)
}

// RemoveConditionalHook unregisters all conditional hooks with the given
// condition.
func (c *Core) RemoveConditionalHook(condition Condition) bool {
	return c.hooks.removeConditional(condition)
}

// RemoveAllHooks clears both hook lists.
func (c *Core) RemoveAllHooks() {
	c.hooks.removeAll()
}

// NotifyTick fires the registered hooks for a freshly produced sample,
// respecting snapshot suppression. Hooks run in registration order.
func (c *Core) NotifyTick(ctx *Context) {
	if !c.shouldNotify() {
		return
	}
	// The epoch load orders this read against the control side's last edit.
	_ = c.hooks.epoch.Load()

	for _, hook := range c.hooks.load() {
		hook(ctx)
	}
	for _, ch := range c.hooks.loadConditional() {
		if ch.condition(ctx) {
			ch.hook(ctx)
		}
	}
}
