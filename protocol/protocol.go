// Package protocol implements the undo/redo transaction log. A Step is one
// atomic group of Items; an Item is one entity's (old, new) snapshot pair.
// The engine knows nothing about what it snapshots beyond the Entity
// contract.
package protocol

import "github.com/pkg/errors"

// Entity is the state-capture contract every undoable object implements.
// SnapshotState must return a fully detached value; RestoreState must
// overwrite the entity in place, preserving its identity.
type Entity interface {
	SnapshotState() any
	RestoreState(state any)
}

var (
	ErrNoOpenAction     = errors.New("protocol: EndAction without StartNewAction")
	ErrActionInProgress = errors.New("protocol: undo/redo while an action is open")
	ErrNothingToUndo    = errors.New("protocol: nothing to undo")
	ErrNothingToRedo    = errors.New("protocol: nothing to redo")
)

// Item is a single entity's before/after pair inside a step.
type Item struct {
	entity   Entity
	oldState any
	newState any
}

// Step is a named, ordered, undo-atomic collection of items.
type Step struct {
	description string
	items       []Item
}

func (s *Step) Description() string { return s.description }
func (s *Step) Len() int { return len(s.items) }

// release restores every item's old state in reverse insertion order and
// returns the mirrored step that redoes the action.
func (s *Step) release() *Step {
	mirror := &Step{description: s.description, items: make([]Item, 0, len(s.items))}
	for i := len(s.items) - 1; i >= 0; i-- {
		it := s.items[i]
		it.entity.RestoreState(it.oldState)
		mirror.items = append(mirror.items, Item{
			entity:   it.entity,
			oldState: it.newState,
			newState: it.oldState,
		})
	}
	return mirror
}

// Protocol holds the undo and redo stacks and the currently recording step,
// if any.
type Protocol struct {
	undo  []*Step
	redo  []*Step
	open  *Step
	depth int

	// Changed, when set, is called after every recorded step, undo and redo.
	// The session layer hangs autosave scheduling off it.
	Changed func()
}

func New() *Protocol {
	return &Protocol{}
}

// StartNewAction opens a recording step. A nested call while a step is
// already open flattens into that step instead of dropping items; the step
// closes on the matching EndAction.
func (p *Protocol) StartNewAction(description string) {
	if p.open != nil {
		p.depth++
		return
	}
	p.open = &Step{description: description}
	p.depth = 1
}

// Push records one entity's before/after pair into the open step. The caller
// must have captured oldState before mutating the entity.
func (p *Protocol) Push(e Entity, oldState, newState any) {
	if p.open == nil {
		// Unrecorded mutation. The caller opted out of undo; nothing to keep.
		return
	}
	p.open.items = append(p.open.items, Item{entity: e, oldState: oldState, newState: newState})
}

// EndAction closes the open step. Empty steps are discarded rather than
// pushed: they have nothing to undo and would surface as a no-op undo.
// Recording a new step invalidates the redo stack.
func (p *Protocol) EndAction() error {
	if p.open == nil {
		return ErrNoOpenAction
	}
	p.depth--
	if p.depth > 0 {
		return nil
	}
	step := p.open
	p.open = nil
	if len(step.items) == 0 {
		return nil
	}
	p.undo = append(p.undo, step)
	p.redo = p.redo[:0]
	if p.Changed != nil {
		p.Changed()
	}
	return nil
}

// Recording reports whether a step is currently open.
func (p *Protocol) Recording() bool { return p.open != nil }

func (p *Protocol) UndoDepth() int { return len(p.undo) }
func (p *Protocol) RedoDepth() int { return len(p.redo) }

// LastDescription returns the description of the step Undo would release.
func (p *Protocol) LastDescription() string {
	if len(p.undo) == 0 {
		return ""
	}
	return p.undo[len(p.undo)-1].description
}

// Undo releases the most recent step and pushes its mirror onto the redo
// stack. Steps are atomic: every item is restored before Undo returns.
func (p *Protocol) Undo() error {
	if p.open != nil {
		return ErrActionInProgress
	}
	if len(p.undo) == 0 {
		return ErrNothingToUndo
	}
	step := p.undo[len(p.undo)-1]
	p.undo = p.undo[:len(p.undo)-1]
	p.redo = append(p.redo, step.release())
	if p.Changed != nil {
		p.Changed()
	}
	return nil
}

// Redo is symmetric to Undo, moving a step from the redo stack back onto
// the undo stack.
func (p *Protocol) Redo() error {
	if p.open != nil {
		return ErrActionInProgress
	}
	if len(p.redo) == 0 {
		return ErrNothingToRedo
	}
	step := p.redo[len(p.redo)-1]
	p.redo = p.redo[:len(p.redo)-1]
	p.undo = append(p.undo, step.release())
	if p.Changed != nil {
		p.Changed()
	}
	return nil
}
