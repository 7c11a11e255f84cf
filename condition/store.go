package condition

import (
	"fmt"

	"github.com/grailbio/base/log"
)

// Store is a session's label-keyed registry of conditions: the in-memory
// API surface the UI and CLI layers drive. Each session owns one Store;
// there is no process-global state. Not safe for concurrent use.
type Store struct {
	assembler  *Assembler
	conditions map[string]*Condition
	order      []string
	nAdded     int
}

// NewStore wraps an assembler. The store owns the assembler and closes
// it with Close.
func NewStore(assembler *Assembler) *Store {
	return &Store{
		assembler:  assembler,
		conditions: make(map[string]*Condition),
	}
}

// AddOpts extends ProcessOpts with condition identity and presentation.
type AddOpts struct {
	ProcessOpts
	// Label identifies the condition; empty derives "condition-N".
	Label string
	Style Style
	// Overwrite allows replacing an existing condition with the same
	// label.
	Overwrite bool
}

// Add processes and registers a new condition. It returns (nil, nil)
// when the condition yields no reads; the caller decides whether to
// surface that to the user. A duplicate label without Overwrite is an
// error.
func (s *Store) Add(bamPath, signalPath, contig string, targetPos int, opts AddOpts) (*Condition, error) {
	label := opts.Label
	if label == "" {
		label = fmt.Sprintf("condition-%d", s.nAdded+1)
	}
	if _, exists := s.conditions[label]; exists && !opts.Overwrite {
		return nil, fmt.Errorf("condition %q already exists (set Overwrite to replace)", label)
	}
	cond, err := s.assembler.Process(bamPath, signalPath, label, contig, targetPos, opts.ProcessOpts)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		return nil, nil
	}
	cond.Style = opts.Style
	if _, exists := s.conditions[label]; !exists {
		s.order = append(s.order, label)
	}
	s.conditions[label] = cond
	s.nAdded++
	return cond, nil
}

// Remove drops a condition by label.
func (s *Store) Remove(label string) error {
	if _, ok := s.conditions[label]; !ok {
		return fmt.Errorf("condition %q not found (available: %v)", label, s.order)
	}
	log.Printf("removing condition %q", label)
	delete(s.conditions, label)
	for i, l := range s.order {
		if l == label {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the condition with the given label.
func (s *Store) Get(label string) (*Condition, bool) {
	c, ok := s.conditions[label]
	return c, ok
}

// Names returns the condition labels in insertion order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// N returns the number of registered conditions.
func (s *Store) N() int { return len(s.conditions) }

// SetStyle updates a condition's presentation attributes.
func (s *Store) SetStyle(label string, style Style) error {
	c, ok := s.conditions[label]
	if !ok {
		return fmt.Errorf("condition %q not found", label)
	}
	c.Style = style
	return nil
}

// Close tears down the store and its assembler caches.
func (s *Store) Close() error {
	s.conditions = nil
	s.order = nil
	return s.assembler.Close()
}
