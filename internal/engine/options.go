package engine

import (
	"log/slog"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/hashmap"
)

// Option allows configuration of machine parameters.
type Option func(*Machine)

// WithAllocator sets the allocator that accounts for machine storage.
// A nil allocator selects the default.
//
// Default: HeapAllocator (grants everything)
func WithAllocator(a Allocator) Option {
	return func(m *Machine) {
		if a == nil {
			a = HeapAllocator{}
		}
		m.alloc = a
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithTracer installs a hook that receives every verb dispatch and cycle
// boundary.
func WithTracer(t Tracer) Option {
	return func(m *Machine) {
		m.tracer = t
	}
}

// WithMaxActiveRules caps how many rules the schedule may activate.
// Exceeding the cap during Run is a fatal BUFFER_LIMIT_EXCEEDED error.
//
// Default: 0 (unlimited)
func WithMaxActiveRules(n int) Option {
	return func(m *Machine) {
		m.quota = NewQuotaEnforcer(n)
	}
}

// WithParseOptions sets the parser limits used by Load.
func WithParseOptions(opts compiler.Options) Option {
	return func(m *Machine) {
		m.parseOpts = opts
	}
}

// WithPrecision sets the bucket precision (log2 of the bucket count) of
// the variable and verb tables.
//
// Default: hashmap.DefaultPrecision for both
func WithPrecision(vars, verbs int) Option {
	return func(m *Machine) {
		m.varPrecision = vars
		m.verbPrecision = verbs
	}
}

func defaultOptions(m *Machine) {
	m.alloc = HeapAllocator{}
	m.logger = slog.Default()
	m.quota = NewQuotaEnforcer(0)
	m.varPrecision = hashmap.DefaultPrecision
	m.verbPrecision = hashmap.DefaultPrecision
}
