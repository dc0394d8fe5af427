package static

// PendingInits reports how many names currently hold an init lock.
func PendingInits(t *Table) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.initLocks)
}
