package console

import (
	"sync"
	"time"
)

type EmployeeCache struct {
	mu        sync.RWMutex
	employees []Employee
	fetchedAt time.Time
	ttl       time.Duration
}

func NewEmployeeCache(ttl time.Duration) *EmployeeCache {
	return &EmployeeCache{ttl: ttl}
}

func (c *EmployeeCache) Get() []Employee {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.employees == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil
	}

	result := make([]Employee, len(c.employees))
	copy(result, c.employees)
	return result
}

func (c *EmployeeCache) Set(employees []Employee) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.employees = make([]Employee, len(employees))
	copy(c.employees, employees)
	c.fetchedAt = time.Now()
}

func (c *EmployeeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.employees = nil
}
