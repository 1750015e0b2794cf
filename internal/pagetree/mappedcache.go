package pagetree

import "container/list"

// mappedPageCache bounds how many read-only (disk-copy) leaf pages stay
// resident at once. It never evicts a Heap page, since those hold live,
// possibly-unsaved document content; it only bounds the lazily-mapped
// read-only copies, freeing a page once no cursor holds it and the leaf
// drops its strong reference.
//
// Shaped on a classic intrusive doubly-linked-list LRU (lru/lruMap/
// evictLRU), generalized from page-ID keys to tree node indices and from
// "evict to disk" (pages are never dirty here) to "drop the in-memory
// copy and let the next read re-map it".
type mappedPageCache struct {
	capacity int
	lru      *list.List
	elems    map[NodeIndex]*list.Element
}

func newMappedPageCache(capacity int) *mappedPageCache {
	if capacity <= 0 {
		capacity = 4096
	}
	return &mappedPageCache{
		capacity: capacity,
		lru:      list.New(),
		elems:    make(map[NodeIndex]*list.Element),
	}
}

// touch records that idx's page was just mapped or read, refreshing its
// recency. The caller (Tree, holding mu) evicts entries returned until the
// cache is back under capacity.
func (c *mappedPageCache) touch(idx NodeIndex) []NodeIndex {
	if elem, ok := c.elems[idx]; ok {
		c.lru.MoveToFront(elem)
		return nil
	}
	elem := c.lru.PushFront(idx)
	c.elems[idx] = elem

	var evicted []NodeIndex
	for c.lru.Len() > c.capacity {
		back := c.lru.Back()
		if back == nil {
			break
		}
		victim := back.Value.(NodeIndex)
		c.lru.Remove(back)
		delete(c.elems, victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

// forget removes idx from the cache without reporting it as an eviction,
// used when a leaf is tombstoned or converted to Heap (it is no longer a
// read-only mapped page the cache should manage).
func (c *mappedPageCache) forget(idx NodeIndex) {
	if elem, ok := c.elems[idx]; ok {
		c.lru.Remove(elem)
		delete(c.elems, idx)
	}
}
