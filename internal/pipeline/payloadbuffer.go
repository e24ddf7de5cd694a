// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Payload buffer — FIFO ring of in-flight instruction indices
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Same head/tail + phase-bit ring encoding as the free list and the
// checkpoint buffer. It only owns slot indices in program order; the
// decoded instruction, its renamed registers, and its checkpoint ID
// live in the machine's own parallel slot array, addressed by the
// index this ring hands out.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package pipeline

// PayloadBuffer is the ring of in-flight instruction slot indices,
// ordered fetch-to-retire.
type PayloadBuffer struct {
	capacity  uint64
	head      uint64
	tail      uint64
	headPhase bool
	tailPhase bool
}

// NewPayloadBuffer builds an empty ring of the given capacity — the
// configured inflight-instruction cap (n_active).
func NewPayloadBuffer(capacity uint64) *PayloadBuffer {
	return &PayloadBuffer{capacity: capacity}
}

func (p *PayloadBuffer) isEmpty() bool {
	return p.head == p.tail && p.headPhase == p.tailPhase
}

func (p *PayloadBuffer) isFull() bool {
	return p.head == p.tail && p.headPhase != p.tailPhase
}

// Push reserves the next slot index in program order, or reports false
// if the buffer is already at its inflight-instruction cap.
func (p *PayloadBuffer) Push() (index uint64, ok bool) {
	if p.isFull() {
		return 0, false
	}
	index = p.tail
	p.tail++
	if p.tail == p.capacity {
		p.tail = 0
		p.tailPhase = !p.tailPhase
	}
	return index, true
}

// Pop removes and returns the oldest slot index, if any remain.
// Implements collab.PayloadBuffer.
func (p *PayloadBuffer) Pop() (index uint64, ok bool) {
	if p.isEmpty() {
		return 0, false
	}
	index = p.head
	p.head++
	if p.head == p.capacity {
		p.head = 0
		p.headPhase = !p.headPhase
	}
	return index, true
}

// Rollback discards the entry at index and everything younger than it
// by retracting the tail back to index. Implements collab.PayloadBuffer.
func (p *PayloadBuffer) Rollback(index uint64) {
	for p.tail != index {
		if p.tail == 0 {
			p.tail = p.capacity - 1
		} else {
			p.tail--
		}
		if p.tail == p.capacity-1 {
			p.tailPhase = !p.tailPhase
		}
	}
}

// Clear discards every in-flight entry. Implements collab.PayloadBuffer.
func (p *PayloadBuffer) Clear() {
	p.head, p.tail = 0, 0
	p.headPhase, p.tailPhase = false, false
}

// Head and Tail expose the ring's current pointers. Implements
// collab.PayloadBuffer.
func (p *PayloadBuffer) Head() uint64 { return p.head }
func (p *PayloadBuffer) Tail() uint64 { return p.tail }

// Empty reports whether the buffer currently holds no entries.
func (p *PayloadBuffer) Empty() bool { return p.isEmpty() }
