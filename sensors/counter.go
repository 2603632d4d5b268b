package sensors

import "sync"

// Counter ist ein Gleitkommawert, der bei jedem Lesen um eins wächst.
type Counter struct {
	mu    sync.Mutex
	value float64
}

func NewCounter(start float64) *Counter {
	return &Counter{value: start}
}

// Next erhöht den Zähler und gibt den neuen Wert zurück.
func (c *Counter) Next() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
