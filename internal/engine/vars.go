package engine

import (
	"iter"

	"github.com/roach88/kdl/internal/ir"
)

// Watcher is called after a variable's value is replaced by a set.
type Watcher func(m *Machine, name string, v ir.Value)

// Entry is one variable record. Value is never Nil.
type Entry struct {
	Name    string
	Value   ir.Value
	Watcher Watcher
}

// FullName joins a context and a local name the way compiled variable
// references do.
func FullName(context, name string) string {
	return ir.JoinName(context, name)
}

// entry returns the variable named full, creating it as Int(0) if absent.
func (m *Machine) entry(full string) (*Entry, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if e, ok := m.vars.Lookup(full); ok {
		return *e, nil
	}
	if err := m.alloc.Alloc(ClassEntry, 1); err != nil {
		return nil, err
	}
	e := &Entry{Name: full, Value: ir.Int(0)}
	m.vars.Insert(full, e)
	return e, nil
}

// Get returns the value of the variable with the given full name,
// creating it as Int(0) if absent.
func (m *Machine) Get(name string) (ir.Value, error) {
	e, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// GetVar is Get with the name resolved inside context.
func (m *Machine) GetVar(context, name string) (ir.Value, error) {
	return m.Get(FullName(context, name))
}

// Set stores v under the given full name and then runs the variable's
// watcher, if any. Nil values are rejected.
func (m *Machine) Set(name string, v ir.Value) error {
	switch v.(type) {
	case ir.Int, ir.Float, ir.Str:
	default:
		err := newError(ErrCodeTypeMismatch, "variable %s cannot hold %s", name, ir.KindOf(v))
		err.Name = name
		return err
	}
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	e.Value = v
	if e.Watcher != nil {
		e.Watcher(m, name, v)
	}
	return nil
}

// SetVar is Set with the name resolved inside context.
func (m *Machine) SetVar(context, name string, v ir.Value) error {
	return m.Set(FullName(context, name), v)
}

func (m *Machine) SetInt(name string, v int64) error { return m.Set(name, ir.Int(v)) }

func (m *Machine) SetFloat(name string, v float64) error { return m.Set(name, ir.Float(v)) }

func (m *Machine) SetString(name string, v string) error { return m.Set(name, ir.Str(v)) }

// GetInt returns an Int variable. Other kinds are a type mismatch.
func (m *Machine) GetInt(name string) (int64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(ir.Int)
	if !ok {
		return 0, m.kindError(name, ir.KindInt, v)
	}
	return int64(n), nil
}

// GetFloat returns a Float variable. Other kinds are a type mismatch.
func (m *Machine) GetFloat(name string) (float64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(ir.Float)
	if !ok {
		return 0, m.kindError(name, ir.KindFloat, v)
	}
	return float64(f), nil
}

// GetString returns a Str variable. Other kinds are a type mismatch.
func (m *Machine) GetString(name string) (string, error) {
	v, err := m.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(ir.Str)
	if !ok {
		return "", m.kindError(name, ir.KindString, v)
	}
	return string(s), nil
}

func (m *Machine) kindError(name string, want ir.Kind, got ir.Value) error {
	err := NewTypeMismatch("variable "+name, want, ir.KindOf(got))
	err.Name = name
	return err
}

// AddWatcher attaches w to the named variable, creating the variable if
// needed. A later AddWatcher replaces the earlier one.
func (m *Machine) AddWatcher(name string, w Watcher) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	e.Watcher = w
	return nil
}

// Variables iterates the variable table in bucket order. The table must
// not be modified during iteration.
func (m *Machine) Variables() iter.Seq2[string, ir.Value] {
	return func(yield func(string, ir.Value) bool) {
		if m.vars == nil {
			return
		}
		for name, e := range m.vars.All() {
			if !yield(name, (*e).Value) {
				return
			}
		}
	}
}

// Snapshot copies every variable into a map.
func (m *Machine) Snapshot() map[string]ir.Value {
	out := make(map[string]ir.Value)
	for name, v := range m.Variables() {
		out[name] = v
	}
	return out
}
