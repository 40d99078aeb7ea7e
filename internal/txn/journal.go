// Package txn provides the snapshot/revert bookkeeping that makes engine entry points
// all-or-nothing, in the style of the go-ethereum state journal.
package txn

// Revertible is state that can be rolled back to an earlier snapshot.
type Revertible interface {
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Journal records undo actions while at least one snapshot is open.
// The zero value is ready to use.
type Journal struct {
	undo      []func()
	revisions []int
}

// Append registers an undo action. Nothing is recorded when no snapshot is open.
func (j *Journal) Append(undo func()) {
	if len(j.revisions) == 0 {
		return
	}
	j.undo = append(j.undo, undo)
}

// Snapshot opens a revision and returns its id.
func (j *Journal) Snapshot() int {
	j.revisions = append(j.revisions, len(j.undo))
	return len(j.revisions) - 1
}

// RevertToSnapshot undoes every change made since the given revision and closes it
// together with all revisions opened after it.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 || id >= len(j.revisions) {
		return
	}
	mark := j.revisions[id]
	for i := len(j.undo) - 1; i >= mark; i-- {
		j.undo[i]()
	}
	j.undo = j.undo[:mark]
	j.revisions = j.revisions[:id]
}

// DiscardSnapshot closes the revision keeping its changes. Once the outermost revision
// is closed the undo log is dropped.
func (j *Journal) DiscardSnapshot(id int) {
	if id < 0 || id >= len(j.revisions) {
		return
	}
	j.revisions = j.revisions[:id]
	if len(j.revisions) == 0 {
		j.undo = j.undo[:0]
	}
}

// Open reports whether any revision is open.
func (j *Journal) Open() bool {
	return len(j.revisions) > 0
}

// Run executes fn inside a snapshot of every participant. When fn fails each participant
// is reverted in reverse order; otherwise the snapshots are discarded.
func Run(fn func() error, parts ...Revertible) error {
	ids := make([]int, len(parts))
	for i, part := range parts {
		ids[i] = part.Snapshot()
	}
	if err := fn(); err != nil {
		for i := len(parts) - 1; i >= 0; i-- {
			parts[i].RevertToSnapshot(ids[i])
		}
		return err
	}
	for i := len(parts) - 1; i >= 0; i-- {
		parts[i].DiscardSnapshot(ids[i])
	}
	return nil
}
