package engine

import (
	"fmt"
	"sync"
)

// Class names the kind of storage an allocation request is for.
type Class int

const (
	// ClassEntry is one variable table entry.
	ClassEntry Class = iota
	// ClassVerb is one verb table registration, including the default verb.
	ClassVerb
	// ClassSchedule is one activated rule slot in the schedule.
	ClassSchedule
	// ClassStack is evaluation stack space for one expression.
	ClassStack

	numClasses
)

var classNames = [...]string{
	ClassEntry:    "entry",
	ClassVerb:     "verb",
	ClassSchedule: "schedule",
	ClassStack:    "stack",
}

func (c Class) String() string {
	if c < 0 || c >= numClasses {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classNames[c]
}

// Allocator accounts for the machine's storage. The Go runtime owns the
// memory itself; an Allocator decides whether a request may proceed and
// observes its release. Every successful Alloc is paired with a Free of
// the same class and size by the time Close returns.
type Allocator interface {
	Alloc(class Class, n int) error
	Free(class Class, n int)
}

// HeapAllocator grants every request. It is the default.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(Class, int) error { return nil }
func (HeapAllocator) Free(Class, int)        {}

// BudgetAllocator grants requests until a total unit budget is spent.
// Exhaustion surfaces as an OUT_OF_MEMORY RuntimeError.
type BudgetAllocator struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewBudgetAllocator creates an allocator with the given unit budget.
func NewBudgetAllocator(limit int) *BudgetAllocator {
	return &BudgetAllocator{limit: limit}
}

func (b *BudgetAllocator) Alloc(class Class, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+n > b.limit {
		e := newError(ErrCodeOutOfMemory, "%s allocation of %d exceeds budget (%d of %d used)",
			class, n, b.used, b.limit)
		e.Details = map[string]string{"class": class.String()}
		return e
	}
	b.used += n
	return nil
}

func (b *BudgetAllocator) Free(_ Class, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= n
}

// Used returns the units currently held.
func (b *BudgetAllocator) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// CountingAllocator records every request and checks that allocations and
// releases pair up. It forwards to Next when set.
type CountingAllocator struct {
	Next Allocator

	mu        sync.Mutex
	allocs    int
	frees     int
	live      [numClasses]int
	overfreed bool
}

func (c *CountingAllocator) Alloc(class Class, n int) error {
	if c.Next != nil {
		if err := c.Next.Alloc(class, n); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocs++
	c.live[class] += n
	return nil
}

func (c *CountingAllocator) Free(class Class, n int) {
	if c.Next != nil {
		c.Next.Free(class, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frees++
	c.live[class] -= n
	if c.live[class] < 0 {
		c.overfreed = true
	}
}

// Live returns the units of class currently held.
func (c *CountingAllocator) Live(class Class) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live[class]
}

// Calls returns the number of Alloc and Free calls seen.
func (c *CountingAllocator) Calls() (allocs, frees int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocs, c.frees
}

// Balanced reports whether every allocation has been released and nothing
// was released twice.
func (c *CountingAllocator) Balanced() bool {
	return c.Leak() == nil
}

// Leak describes the first imbalance found, or returns nil.
func (c *CountingAllocator) Leak() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overfreed {
		return fmt.Errorf("allocator: more units freed than allocated")
	}
	for class, n := range c.live {
		if n != 0 {
			return fmt.Errorf("allocator: %d %s units still live", n, Class(class))
		}
	}
	return nil
}
