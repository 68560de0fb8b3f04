package history

import (
	"github.com/baharrsalmann/filesystem-recovery/internal/image"
	"github.com/baharrsalmann/filesystem-recovery/internal/walk"
)

func sameRecord(a, b walk.EntryRecord) bool {
	return a.FullPath == b.FullPath && a.ParentInode == b.ParentInode && a.IsGhost == b.IsGhost
}

// buildActions assembles the Action sequence for a single inode from the
// picks classifyOne made, per spec.md §4.4's emission rules.
func buildActions(inodeID uint32, ino image.Inode, live, ghosts []walk.EntryRecord, creation, deletion, otherGhost *walk.EntryRecord, lookup *parentLookup) []Action {
	// spec.md §4.4: the create/delete kind comes from the inode's own mode
	// bits, not a ghost's possibly-stale directory-entry file_type byte —
	// a ghost's referenced inode may since have been recycled or zeroed.
	isDir := ino.IsDir()
	createKind := KindTouch
	if isDir {
		createKind = KindMkdir
	}
	createPath := unknownPath
	createParent := uint32(0)
	if creation != nil {
		createPath = creation.FullPath
		createParent = creation.ParentInode
	}

	actions := []Action{{
		Timestamp:      ts(ino.ATime),
		Kind:           createKind,
		Args:           []string{createPath},
		AffectedDirs:   []uint32{createParent},
		AffectedInodes: []uint32{inodeID},
	}}

	if len(ghosts) == 0 {
		return actions
	}

	if ino.DTime != 0 {
		return append(actions, buildDeleted(inodeID, ino, ghosts, creation, deletion, isDir, lookup)...)
	}
	return append(actions, buildAlive(inodeID, ino, live, ghosts, creation, otherGhost, lookup)...)
}

func buildDeleted(inodeID uint32, ino image.Inode, ghosts []walk.EntryRecord, creation, deletion *walk.EntryRecord, isDir bool, lookup *parentLookup) []Action {
	var actions []Action

	delKind := KindRm
	if isDir {
		delKind = KindRmdir
	}
	delPath := unknownPath
	delParent := uint32(0)
	if deletion != nil {
		delPath = deletion.FullPath
		delParent = deletion.ParentInode
	}
	actions = append(actions, Action{
		Timestamp:      ts(ino.DTime),
		Kind:           delKind,
		Args:           []string{delPath},
		AffectedDirs:   []uint32{delParent},
		AffectedInodes: []uint32{inodeID},
	})

	switch {
	case len(ghosts) < 2:
		// A single ghost played both the creation and deletion role;
		// there is nothing left to have been renamed between.

	case len(ghosts) == 2 && creation != nil && deletion != nil:
		actions = append(actions, Action{
			Kind:           KindMv,
			Args:           []string{creation.FullPath, deletion.FullPath},
			AffectedDirs:   []uint32{creation.ParentInode, deletion.ParentInode},
			AffectedInodes: []uint32{inodeID},
		})

	case creation == nil:
		fromPath := unknownPath
		fromParent := uint32(0)
		toPath := unknownPath
		toParent := uint32(0)
		if deletion != nil {
			toPath = deletion.FullPath
			toParent = deletion.ParentInode
			actions = append(actions, Action{
				Kind:           KindMv,
				Args:           []string{fromPath, toPath},
				AffectedDirs:   []uint32{fromParent, toParent},
				AffectedInodes: []uint32{inodeID},
			})
			for _, g := range ghosts {
				if sameRecord(g, *deletion) {
					continue
				}
				actions = append(actions, Action{
					Kind:           KindMv,
					Args:           []string{g.FullPath, unknownPath},
					AffectedDirs:   []uint32{g.ParentInode, 0},
					AffectedInodes: []uint32{inodeID},
				})
			}
		} else {
			// Without a resolved deletion entry, spec.md §4.4 only chains in
			// the ghosts whose parent's mtime doesn't match the inode's own
			// deletion time — a ghost whose parent mtime equals t_d looks
			// like the deletion itself, not an intermediate rename.
			for _, g := range ghosts {
				_, mtime, ok := lookup.times(g.ParentInode)
				if ok && mtime == ino.DTime {
					continue
				}
				actions = append(actions, Action{
					Kind:           KindMv,
					Args:           []string{g.FullPath, unknownPath},
					AffectedDirs:   []uint32{g.ParentInode, 0},
					AffectedInodes: []uint32{inodeID},
				})
			}
		}

	default:
		if deletion != nil {
			actions = append(actions, Action{
				Kind:           KindMv,
				Args:           []string{creation.FullPath, deletion.FullPath},
				AffectedDirs:   []uint32{creation.ParentInode, deletion.ParentInode},
				AffectedInodes: []uint32{inodeID},
			})
		}
		for _, g := range ghosts {
			if sameRecord(g, *creation) {
				continue
			}
			if deletion != nil && sameRecord(g, *deletion) {
				continue
			}
			actions = append(actions, Action{
				Kind:           KindMv,
				Args:           []string{g.FullPath, unknownPath},
				AffectedDirs:   []uint32{g.ParentInode, 0},
				AffectedInodes: []uint32{inodeID},
			})
		}
	}

	return actions
}

// aliveMoveTimestamp computes spec.md §4.4's "inode.t_c if t_c != t_m, else
// unknown" timestamp rule, shared by the G=1 and G=2 special cases below.
func aliveMoveTimestamp(ino image.Inode) *uint32 {
	if ino.CTime != ino.MTime {
		return ts(ino.CTime)
	}
	return nil
}

// buildAlive handles the inode-still-alive case (t_d == 0). spec.md §4.4
// special-cases G=1 (a single unconditional ghost->live mv) and G=2 with
// both creation and otherGhost resolved (a two-hop creation->otherGhost->live
// chain); everything else falls through to the generic per-ghost loop that
// tests each ghost's parent mtime against the live entry's parent mtime or
// the inode's own change time.
func buildAlive(inodeID uint32, ino image.Inode, live, ghosts []walk.EntryRecord, creation, otherGhost *walk.EntryRecord, lookup *parentLookup) []Action {
	var liveTarget *walk.EntryRecord
	if len(live) == 1 {
		liveTarget = &live[0]
	}

	if len(ghosts) == 1 {
		toPath := unknownPath
		toParent := uint32(0)
		if liveTarget != nil {
			toPath = liveTarget.FullPath
			toParent = liveTarget.ParentInode
		}
		return []Action{{
			Timestamp:      aliveMoveTimestamp(ino),
			Kind:           KindMv,
			Args:           []string{ghosts[0].FullPath, toPath},
			AffectedDirs:   []uint32{ghosts[0].ParentInode, toParent},
			AffectedInodes: []uint32{inodeID},
		}}
	}

	if len(ghosts) == 2 && creation != nil && otherGhost != nil {
		toPath := unknownPath
		toParent := uint32(0)
		if liveTarget != nil {
			toPath = liveTarget.FullPath
			toParent = liveTarget.ParentInode
		}

		secondTs := aliveMoveTimestamp(ino)
		_, otherMtime, otherOK := lookup.times(otherGhost.ParentInode)
		if liveTarget != nil {
			_, liveMtime, liveOK := lookup.times(liveTarget.ParentInode)
			if otherOK && ((liveOK && otherMtime == liveMtime) || otherMtime == ino.CTime) {
				secondTs = ts(otherMtime)
			}
		} else if otherOK && otherMtime == ino.CTime {
			secondTs = ts(otherMtime)
		}

		return []Action{
			{
				Kind:           KindMv,
				Args:           []string{creation.FullPath, otherGhost.FullPath},
				AffectedDirs:   []uint32{creation.ParentInode, otherGhost.ParentInode},
				AffectedInodes: []uint32{inodeID},
			},
			{
				Timestamp:      secondTs,
				Kind:           KindMv,
				Args:           []string{otherGhost.FullPath, toPath},
				AffectedDirs:   []uint32{otherGhost.ParentInode, toParent},
				AffectedInodes: []uint32{inodeID},
			},
		}
	}

	var actions []Action
	matchedLive := false

	var liveParentMtime uint32
	var liveParentOK bool
	if liveTarget != nil {
		_, liveParentMtime, liveParentOK = lookup.times(liveTarget.ParentInode)
	}

	for _, g := range ghosts {
		_, gParentMtime, gOK := lookup.times(g.ParentInode)
		matches := gOK && ((liveTarget != nil && liveParentOK && gParentMtime == liveParentMtime) || gParentMtime == ino.CTime)

		if !matches {
			actions = append(actions, Action{
				Kind:           KindMv,
				Args:           []string{g.FullPath, unknownPath},
				AffectedDirs:   []uint32{g.ParentInode, 0},
				AffectedInodes: []uint32{inodeID},
			})
			continue
		}

		toPath := unknownPath
		toParent := uint32(0)
		if liveTarget != nil {
			toPath = liveTarget.FullPath
			toParent = liveTarget.ParentInode
			matchedLive = true
		}
		actions = append(actions, Action{
			Timestamp:      ts(gParentMtime),
			Kind:           KindMv,
			Args:           []string{g.FullPath, toPath},
			AffectedDirs:   []uint32{g.ParentInode, toParent},
			AffectedInodes: []uint32{inodeID},
		})
	}

	if liveTarget != nil && !matchedLive {
		actions = append(actions, Action{
			Timestamp:      aliveMoveTimestamp(ino),
			Kind:           KindMv,
			Args:           []string{unknownPath, liveTarget.FullPath},
			AffectedDirs:   []uint32{0, liveTarget.ParentInode},
			AffectedInodes: []uint32{inodeID},
		})
	}

	return actions
}
