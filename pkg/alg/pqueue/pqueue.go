// Package pqueue provides a binary min-heap that reports every position
// change of its elements back to the caller. Consumers that need O(log n)
// removal of arbitrary elements keep the reported index alongside the element
// instead of searching the heap.
//
// The sift code follows container/heap but uses a concrete element type to
// avoid the interface overhead.
package pqueue

// Queue is a min-heap over elements of type T. Ordering is defined by less;
// ties are broken arbitrarily. After every reordering, setPos is invoked with
// each moved element and its new 0-based index, so element 0 is always the
// minimum.
type Queue[T any] struct {
	items  []T
	less   func(a, b T) bool
	setPos func(elem T, pos int)
}

// New creates an empty queue with the given ordering and position callback.
func New[T any](capacity int, less func(a, b T) bool, setPos func(elem T, pos int)) *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, capacity),
		less:   less,
		setPos: setPos,
	}
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Insert adds an element and restores the heap order.
func (q *Queue[T]) Insert(elem T) {
	q.items = append(q.items, elem)
	q.place(len(q.items) - 1)
	q.up(len(q.items) - 1)
}

// Peek returns the minimum element. ok is false when the queue is empty.
func (q *Queue[T]) Peek() (elem T, ok bool) {
	if len(q.items) == 0 {
		var zero T

		return zero, false
	}

	return q.items[0], true
}

// DeleteAt removes the element at position pos, as previously reported
// through the position callback.
func (q *Queue[T]) DeleteAt(pos int) {
	n := len(q.items) - 1
	if pos != n {
		q.swap(pos, n)
	}

	q.items = q.items[:n]

	if pos < n {
		if !q.down(pos) {
			q.up(pos)
		}
	}
}

// Elements returns the backing slice in heap order. The slice is owned by the
// queue and must not be modified.
func (q *Queue[T]) Elements() []T {
	return q.items
}

func (q *Queue[T]) place(i int) {
	q.setPos(q.items[i], i)
}

func (q *Queue[T]) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.place(i)
	q.place(j)
}

func (q *Queue[T]) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if !q.less(q.items[j], q.items[i]) {
			break
		}

		q.swap(i, j)
		j = i
	}
}

func (q *Queue[T]) down(i0 int) bool {
	i := i0
	n := len(q.items)

	for {
		j := 2*i + 1
		if j >= n {
			break
		}

		if r := j + 1; r < n && q.less(q.items[r], q.items[j]) {
			j = r
		}

		if !q.less(q.items[j], q.items[i]) {
			break
		}

		q.swap(i, j)
		i = j
	}

	return i > i0
}
