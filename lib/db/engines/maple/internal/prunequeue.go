package internal

import (
	"container/heap"
	"strconv"
)

// item is one scheduled key with the timestamp from which it can be pruned
type item struct {
	Key   string // Record key
	Due   int64  // Commit timestamp that must pass the retention horizon
	index int    // Index in the heap, maintained by heap package
}

func (i *item) String() string {
	return "{Key: " + i.Key + ", Due: " + strconv.FormatInt(i.Due, 10) + "}"
}

// PruneQueue is a min-heap of record keys ordered by due timestamp, with a
// map for O(1) lookup by key. A key is in the queue at most once.
//
// Thread-safety: This type is not thread-safe, the owning table's lock must
// be held.
type PruneQueue struct {
	items    []*item
	itemsMap map[string]*item
}

// NewPruneQueue creates an empty queue
func NewPruneQueue() *PruneQueue {
	return &PruneQueue{
		items:    make([]*item, 0),
		itemsMap: make(map[string]*item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (q *PruneQueue) Len() int { return len(q.items) }

// Less orders by due timestamp (part of heap.Interface)
func (q *PruneQueue) Less(i, j int) bool { return q.items[i].Due < q.items[j].Due }

// Swap exchanges items at positions i and j (part of heap.Interface)
func (q *PruneQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (q *PruneQueue) Push(x interface{}) {
	it := x.(*item)
	it.index = len(q.items)
	q.items = append(q.items, it)
	q.itemsMap[it.Key] = it
}

// Pop removes and returns the earliest item (part of heap.Interface)
func (q *PruneQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	q.items = old[:n-1]
	delete(q.itemsMap, it.Key)
	return it
}

// Schedule adds key with the given due timestamp. If the key is already
// queued the earlier of both timestamps is kept.
func (q *PruneQueue) Schedule(key string, due int64) {
	if it, exists := q.itemsMap[key]; exists {
		if due < it.Due {
			it.Due = due
			heap.Fix(q, it.index)
		}
		return
	}
	heap.Push(q, &item{Key: key, Due: due})
}

// PopDue removes and returns the earliest key if it is due at horizon.
func (q *PruneQueue) PopDue(horizon int64) (string, bool) {
	if len(q.items) == 0 || q.items[0].Due > horizon {
		return "", false
	}
	it := heap.Pop(q).(*item)
	return it.Key, true
}

// Contains checks if a key is queued
func (q *PruneQueue) Contains(key string) bool {
	_, exists := q.itemsMap[key]
	return exists
}
