// Package changelog implements an append-only, re-invertible transcript
// of Insert/Remove/Tag operations that drives undo/redo.
package changelog

import "time"

// OpKind enumerates the three kinds of change-log entry.
type OpKind int

const (
	OpInsert OpKind = iota
	OpRemove
	OpTag
)

// Op is one change-log entry. Offset and Data are meaningful for
// OpInsert/OpRemove; Cursors/Selections and Timestamp are meaningful for
// OpTag.
type Op struct {
	Kind       OpKind
	Offset     uint64
	Data       []byte
	Timestamp  time.Time
	Cursors    []uint64
	Selections []uint64
}

// invert returns the operation that undoes op. Insert<->Remove with the
// same offset/data; Tag inverts to a Tag with a refreshed timestamp and
// the same cursor/selection sets.
func invert(op Op, now time.Time) Op {
	switch op.Kind {
	case OpInsert:
		return Op{Kind: OpRemove, Offset: op.Offset, Data: op.Data}
	case OpRemove:
		return Op{Kind: OpInsert, Offset: op.Offset, Data: op.Data}
	case OpTag:
		return Op{Kind: OpTag, Timestamp: now, Cursors: op.Cursors, Selections: op.Selections}
	default:
		return op
	}
}

// Log is the append-only, cursor-positioned operation vector backing
// undo/redo. pos splits the log into a "past" half ([0,pos)) and a
// "future" half ([pos,len)); undo moves an op from past to future (as
// its inversion), redo replays an op from future back into the past.
type Log struct {
	enabled bool
	ops     []Op
	pos     int
	now     func() time.Time
}

// New creates a change log. enabled mirrors the buffer-level "use buffer
// log" flag (Tag contract: "log disabled -> false"); nowFn
// lets tests and the Tag coalescing rule control time deterministically.
func New(enabled bool, nowFn func() time.Time) *Log {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Log{enabled: enabled, now: nowFn}
}

// Enabled reports whether this log records operations at all.
func (l *Log) Enabled() bool { return l.enabled }

// Pos returns the current cursor position in the log.
func (l *Log) Pos() int { return l.pos }

// Len returns the total number of entries, past and future.
func (l *Log) Len() int { return len(l.ops) }

// Append records a new Insert/Remove op produced by a live mutation. If
// pos is before the end of the log (the caller previously undid some
// operations), the inversions of ops[pos:] are appended first so that
// undone range remains reachable as a re-invertible suffix, then the new
// op is appended and pos advances past it.
func (l *Log) Append(op Op) {
	if !l.enabled {
		return
	}
	l.foldFuture()
	l.ops = append(l.ops, op)
	l.pos = len(l.ops)
}

// foldFuture keeps ops[pos:] in place and appends their inversions after
// them, in the order the undos applied them, so the log remains a full
// transcript of the document's history.
func (l *Log) foldFuture() {
	if l.pos >= len(l.ops) {
		return
	}
	future := l.ops[l.pos:]
	inverted := make([]Op, len(future))
	for i, op := range future {
		inverted[len(future)-1-i] = invert(op, l.now())
	}
	l.ops = append(l.ops, inverted...)
	l.pos = len(l.ops)
}

// Tag appends a Tag entry recording cursor/selection offsets. Repeated
// tags with an identical timestamp are coalesced into the existing entry
// rather than duplicated.
func (l *Log) Tag(at time.Time, cursors, selections []uint64) bool {
	if !l.enabled {
		return false
	}
	if l.pos > 0 {
		if prev := l.ops[l.pos-1]; prev.Kind == OpTag && prev.Timestamp.Equal(at) {
			l.ops[l.pos-1] = Op{Kind: OpTag, Timestamp: at, Cursors: cursors, Selections: selections}
			return true
		}
	}
	l.Append(Op{Kind: OpTag, Timestamp: at, Cursors: cursors, Selections: selections})
	return true
}

// Undo moves the cursor one step back and returns the inverted operation
// to apply, or ok=false if there is nothing to undo. The caller applies
// the returned op to the document without re-appending it to the log
// (this is a replay, not a new edit).
func (l *Log) Undo() (Op, bool) {
	if l.pos == 0 {
		return Op{}, false
	}
	l.pos--
	return invert(l.ops[l.pos], l.now()), true
}

// Redo moves the cursor one step forward and returns the operation to
// replay as-is, or ok=false if there is nothing to redo.
func (l *Log) Redo() (Op, bool) {
	if l.pos >= len(l.ops) {
		return Op{}, false
	}
	op := l.ops[l.pos]
	l.pos++
	return op, true
}

// UndoUntilTag applies inversions (via fn) walking backward past the group
// boundary tag at pos (if any, it marks the end of the group already
// undone, not a stopping point) through the edits of one group, stopping
// once it has also undone the Tag entry marking that group's start.
func (l *Log) UndoUntilTag(fn func(Op)) {
	if l.pos > 0 && l.ops[l.pos-1].Kind == OpTag {
		op, ok := l.Undo()
		if !ok {
			return
		}
		fn(op)
	}
	for l.pos > 0 {
		isTag := l.ops[l.pos-1].Kind == OpTag
		op, ok := l.Undo()
		if !ok {
			return
		}
		fn(op)
		if isTag {
			return
		}
	}
}

// RedoUntilTag replays operations (via fn) walking forward past the group
// boundary tag at pos through the edits of one group, stopping once it has
// also replayed the Tag entry marking that group's end.
func (l *Log) RedoUntilTag(fn func(Op)) {
	if l.pos < len(l.ops) && l.ops[l.pos].Kind == OpTag {
		op, ok := l.Redo()
		if !ok {
			return
		}
		fn(op)
	}
	for l.pos < len(l.ops) {
		isTag := l.ops[l.pos].Kind == OpTag
		op, ok := l.Redo()
		if !ok {
			return
		}
		fn(op)
		if isTag {
			return
		}
	}
}

// TagAt returns the Cursors/Selections recorded by the Tag entry at log
// index i, if any (used by buffer.TagOffsetsAt, which supplements the
// change log with a tag-indexed cursor/selection lookup).
func (l *Log) TagAt(i int) (cursors, selections []uint64, ok bool) {
	if i < 0 || i >= len(l.ops) {
		return nil, nil, false
	}
	op := l.ops[i]
	if op.Kind != OpTag {
		return nil, nil, false
	}
	return op.Cursors, op.Selections, true
}

// IsTagAt reports whether the entry at index i is a Tag entry.
func (l *Log) IsTagAt(i int) bool {
	if i < 0 || i >= len(l.ops) {
		return false
	}
	return l.ops[i].Kind == OpTag
}
