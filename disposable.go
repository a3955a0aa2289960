package cmdproxy

import "sync"

// Disposable releases a registration or resource
type Disposable interface {
	Dispose()
}

// Scope accumulates disposables so they can be released together
type Scope interface {
	Push(d Disposable)
}

type disposableFunc struct {
	once sync.Once
	fn   func()
}

func (d *disposableFunc) Dispose() {
	d.once.Do(d.fn)
}

// NewDisposable returns a Disposable that runs fn at most once
func NewDisposable(fn func()) Disposable {
	return &disposableFunc{fn: fn}
}

// DisposableCollection is a Scope whose members are released in reverse
// order of registration. Pushing into an already disposed collection releases
// the pushed value immediately.
type DisposableCollection struct {
	mu       sync.Mutex
	items    []Disposable
	disposed bool
}

func NewDisposableCollection(items ...Disposable) *DisposableCollection {
	return &DisposableCollection{items: items}
}

func (c *DisposableCollection) Push(d Disposable) {
	if d == nil {
		return
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		d.Dispose()
		return
	}
	c.items = append(c.items, d)
	c.mu.Unlock()
}

func (c *DisposableCollection) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	items := c.items
	c.items = nil
	c.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}

func (c *DisposableCollection) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *DisposableCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
