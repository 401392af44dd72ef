// Package queue provides the bounded in-order instruction FIFO shared by the
// fetch queue and the reorder buffer.
package queue

import (
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/oocore/insts"
)

// ErrFull is returned when a push would exceed the queue capacity.
var ErrFull = errors.New("queue full")

// InstQueue is a bounded FIFO of instructions backed by an Akita buffer.
type InstQueue struct {
	name string
	buf  sim.Buffer
}

// New creates an empty queue holding at most capacity instructions.
func New(name string, capacity int) *InstQueue {
	return &InstQueue{
		name: name,
		buf:  sim.NewBuffer(name, capacity),
	}
}

// Name returns the queue name.
func (q *InstQueue) Name() string {
	return q.name
}

// Size returns the number of queued instructions.
func (q *InstQueue) Size() int {
	return q.buf.Size()
}

// Capacity returns the maximum occupancy.
func (q *InstQueue) Capacity() int {
	return q.buf.Capacity()
}

// Empty returns true if nothing is queued.
func (q *InstQueue) Empty() bool {
	return q.buf.Size() == 0
}

// Free returns the remaining capacity.
func (q *InstQueue) Free() int {
	return q.buf.Capacity() - q.buf.Size()
}

// Push appends inst at the tail.
func (q *InstQueue) Push(inst *insts.Inst) error {
	if !q.buf.CanPush() {
		return fmt.Errorf("%w: %s holds %d/%d, rejected %s",
			ErrFull, q.name, q.Size(), q.Capacity(), inst)
	}
	q.buf.Push(inst)
	return nil
}

// PushGroup appends every instruction of g in order. Nothing is pushed if
// the whole group does not fit.
func (q *InstQueue) PushGroup(g insts.Group) error {
	if len(g) > q.Free() {
		return fmt.Errorf("%w: %s holds %d/%d, rejected group of %d",
			ErrFull, q.name, q.Size(), q.Capacity(), len(g))
	}
	for _, inst := range g {
		q.buf.Push(inst)
	}
	return nil
}

// Front returns the head instruction, or nil.
func (q *InstQueue) Front() *insts.Inst {
	item := q.buf.Peek()
	if item == nil {
		return nil
	}
	return item.(*insts.Inst)
}

// Pop removes and returns the head instruction, or nil.
func (q *InstQueue) Pop() *insts.Inst {
	item := q.buf.Pop()
	if item == nil {
		return nil
	}
	return item.(*insts.Inst)
}

// Clear discards every queued instruction.
func (q *InstQueue) Clear() {
	for q.buf.Size() > 0 {
		q.buf.Pop()
	}
}

// Entries returns the queued instructions from head to tail without
// removing them.
func (q *InstQueue) Entries() []*insts.Inst {
	n := q.buf.Size()
	entries := make([]*insts.Inst, 0, n)
	for i := 0; i < n; i++ {
		inst := q.buf.Pop().(*insts.Inst)
		entries = append(entries, inst)
		q.buf.Push(inst)
	}
	return entries
}
