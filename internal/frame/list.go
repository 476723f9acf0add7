package frame

// List is an ordered sequence of frame references used as a queue or
// playout history. Clearing releases every held reference; List never
// reads or writes a frame's payload.
type List struct {
	items []Frame
}

// NewList creates an empty list.
func NewList() *List { return &List{} }

// PushBack appends f, taking a reference.
func (l *List) PushBack(f Frame) {
	l.items = append(l.items, f.Ref())
}

// PushFront prepends f, taking a reference.
func (l *List) PushFront(f Frame) {
	l.items = append([]Frame{f.Ref()}, l.items...)
}

// Front returns the first item without removing it, or nil if empty.
func (l *List) Front() Frame {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

// Back returns the last item without removing it, or nil if empty.
func (l *List) Back() Frame {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[len(l.items)-1]
}

// PopFront removes and returns the first item, transferring its reference
// to the caller (the caller must eventually Unref it). Returns nil if
// empty.
func (l *List) PopFront() Frame {
	if len(l.items) == 0 {
		return nil
	}
	f := l.items[0]
	l.items = l.items[1:]
	return f
}

// RemoveAt removes and releases the reference at index i.
func (l *List) RemoveAt(i int) {
	if i < 0 || i >= len(l.items) {
		return
	}
	l.items[i].Unref()
	l.items = append(l.items[:i], l.items[i+1:]...)
}

// InsertAt splices f into the list at index i, taking a reference.
func (l *List) InsertAt(i int, f Frame) {
	if i < 0 {
		i = 0
	}
	if i > len(l.items) {
		i = len(l.items)
	}
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = f.Ref()
}

// At returns the item at index i without taking an extra reference.
func (l *List) At(i int) Frame { return l.items[i] }

// Len reports the number of items currently held.
func (l *List) Len() int { return len(l.items) }

// Empty reports whether the list holds no items.
func (l *List) Empty() bool { return len(l.items) == 0 }

// Clear releases every held reference and empties the list.
func (l *List) Clear() {
	for _, f := range l.items {
		f.Unref()
	}
	l.items = l.items[:0]
}

// Each calls fn for every item in order; fn must not mutate the list.
func (l *List) Each(fn func(i int, f Frame)) {
	for i, f := range l.items {
		fn(i, f)
	}
}
