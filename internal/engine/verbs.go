package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/ir"
)

// VerbFunc is a host callback. context is the action's resolved context
// and name the verb name as written. An error aborts the cycle.
//
// A verb may read and write variables and register verbs on m; those
// changes are visible to later rules in the same cycle.
type VerbFunc func(m *Machine, context, name string, params []ir.Value) error

// Verb is a registered callback plus its declared signature.
type Verb struct {
	Func VerbFunc

	// Params lists the expected kind of each parameter. It is only
	// enforced when Validate is set.
	Params   []ir.Kind
	Validate bool
}

// AddVerb registers v under name, replacing any earlier registration.
func (m *Machine) AddVerb(name string, v Verb) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if v.Func == nil {
		return fmt.Errorf("add verb %q: nil Func", name)
	}
	if p, ok := m.verbs.Lookup(name); ok {
		**p = v
		return nil
	}
	if err := m.alloc.Alloc(ClassVerb, 1); err != nil {
		return err
	}
	vc := v
	m.verbs.Insert(name, &vc)
	return nil
}

// AddDefaultVerb installs the verb that answers every unregistered name.
func (m *Machine) AddDefaultVerb(v Verb) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if v.Func == nil {
		return fmt.Errorf("add default verb: nil Func")
	}
	if m.defaultVerb == nil {
		if err := m.alloc.Alloc(ClassVerb, 1); err != nil {
			return err
		}
	}
	vc := v
	m.defaultVerb = &vc
	return nil
}

// lookupVerb resolves a verb name, falling back to the default verb.
func (m *Machine) lookupVerb(name string) (v *Verb, isDefault bool, err error) {
	if p, ok := m.verbs.Lookup(name); ok {
		return *p, false, nil
	}
	if m.defaultVerb != nil {
		return m.defaultVerb, true, nil
	}
	return nil, false, NewUndefinedVerb(name)
}

// checkArity enforces a validating verb's parameter count.
func (v *Verb) checkArity(name string, n int) error {
	if !v.Validate || n == len(v.Params) {
		return nil
	}
	e := newError(ErrCodeTypeMismatch, "verb %q takes %d parameters, got %d", name, len(v.Params), n)
	e.Verb = name
	return e
}

// checkKinds enforces a validating verb's parameter kinds.
func (v *Verb) checkKinds(name string, params []ir.Value) error {
	if !v.Validate {
		return nil
	}
	for i, p := range params {
		if got := ir.KindOf(p); got != v.Params[i] {
			e := NewTypeMismatch(fmt.Sprintf("verb %q parameter %d", name, i), v.Params[i], got)
			e.Verb = name
			return e
		}
	}
	return nil
}

// Signatures reports every registered verb's signature for static checks.
func (m *Machine) Signatures() map[string]compiler.Signature {
	out := make(map[string]compiler.Signature)
	if m.verbs == nil {
		return out
	}
	for name, v := range m.verbs.All() {
		out[name] = compiler.Signature{Params: slices.Clone((*v).Params), Validate: (*v).Validate}
	}
	return out
}

// HasDefaultVerb reports whether a default verb is installed.
func (m *Machine) HasDefaultVerb() bool {
	return m.defaultVerb != nil
}
