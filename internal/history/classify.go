package history

import (
	"github.com/sirupsen/logrus"

	"github.com/baharrsalmann/filesystem-recovery/internal/image"
	"github.com/baharrsalmann/filesystem-recovery/internal/walk"
)

// parentLookup reads the small subset of an inode's timestamps the
// Classifier needs when evaluating a ghost or live entry's parent
// directory, caching each parent inode it reads. It is
// looked up directly against the image rather than through the Index,
// because a parent (the root, most commonly) is not guaranteed to have its
// own InodeObservation: the Index only grows when an inode is *observed as
// someone's child entry*, and the root never is.
type parentLookup struct {
	img   *image.Image
	log   *logrus.Entry
	cache map[uint32]image.Inode
}

func newParentLookup(img *image.Image, log *logrus.Entry) *parentLookup {
	return &parentLookup{img: img, log: log, cache: make(map[uint32]image.Inode)}
}

func (p *parentLookup) times(id uint32) (atime, mtime uint32, ok bool) {
	if id == 0 {
		return 0, 0, false
	}
	ino, cached := p.cache[id]
	if !cached {
		var err error
		ino, err = p.img.ReadInode(id)
		if err != nil {
			p.log.WithField("inode", id).WithError(err).Warn("could not read parent inode for history classification")
			return 0, 0, false
		}
		p.cache[id] = ino
	}
	return ino.ATime, ino.MTime, true
}

// Classify runs the History Classifier (spec.md §4.4) over the complete
// Index the Tree Walker built, and returns the inferred Actions in the
// deterministic per-inode order the Emitter's stable sort relies on for
// tie-breaking.
func Classify(idx walk.Index, img *image.Image, log *logrus.Entry) []Action {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	lookup := newParentLookup(img, log)

	var actions []Action
	for _, id := range walk.SortedInodes(idx) {
		obs := idx[id]
		actions = append(actions, classifyOne(id, obs, lookup)...)
	}
	return actions
}

func splitEntries(entries []walk.EntryRecord) (live, ghosts []walk.EntryRecord) {
	for _, e := range entries {
		if e.IsGhost {
			ghosts = append(ghosts, e)
		} else {
			live = append(live, e)
		}
	}
	return live, ghosts
}

// findPreferredUnique implements spec.md's "preferred unique" rule: if
// exactly one candidate matches eq, pick it; else if exactly one matches
// lt, pick it; else leave the slot unknown (nil).
func findPreferredUnique(candidates []walk.EntryRecord, matches func(walk.EntryRecord) bool, looser func(walk.EntryRecord) bool) *walk.EntryRecord {
	var eqMatch *walk.EntryRecord
	eqCount := 0
	for i := range candidates {
		if matches(candidates[i]) {
			eqCount++
			eqMatch = &candidates[i]
		}
	}
	if eqCount == 1 {
		return eqMatch
	}

	var ltMatch *walk.EntryRecord
	ltCount := 0
	for i := range candidates {
		if looser(candidates[i]) {
			ltCount++
			ltMatch = &candidates[i]
		}
	}
	if ltCount == 1 {
		return ltMatch
	}
	return nil
}

func otherOf(candidates []walk.EntryRecord, picked *walk.EntryRecord) *walk.EntryRecord {
	for i := range candidates {
		if &candidates[i] != picked {
			return &candidates[i]
		}
	}
	return nil
}

// classifyOne applies spec.md §4.4's (ghost_count, live_count) case table
// to a single inode's observations and emits its actions.
func classifyOne(inodeID uint32, obs *walk.InodeObservation, lookup *parentLookup) []Action {
	live, ghosts := splitEntries(obs.Entries)
	ino := obs.Inode

	if len(live) > 1 {
		// Hard-link territory: outside the case table entirely. Never
		// abort — propagate unknown widely, per spec.md's failure
		// semantics for malformed inode images.
		return buildActions(inodeID, ino, live, ghosts, nil, nil, nil, lookup)
	}

	creationEq := func(g walk.EntryRecord) bool {
		_, mtime, ok := lookup.times(g.ParentInode)
		return ok && mtime == ino.ATime
	}
	creationLt := func(g walk.EntryRecord) bool {
		atime, _, ok := lookup.times(g.ParentInode)
		return ok && atime < ino.ATime
	}
	deletionEq := func(g walk.EntryRecord) bool {
		_, mtime, ok := lookup.times(g.ParentInode)
		return ok && mtime == ino.DTime
	}
	deletionGt := func(g walk.EntryRecord) bool {
		_, mtime, ok := lookup.times(g.ParentInode)
		return ok && mtime > ino.DTime
	}

	var creation, deletion, otherGhost *walk.EntryRecord

	switch {
	case len(ghosts) == 0 && len(live) == 1:
		creation = &live[0]

	case len(ghosts) == 1 && len(live) == 1:
		creation = &ghosts[0]

	case len(ghosts) == 2 && len(live) == 1:
		creation = findPreferredUnique(ghosts, creationEq, creationLt)
		if creation != nil {
			otherGhost = otherOf(ghosts, creation)
		} else {
			liveParentMtime, _, liveOK := lookup.times(live[0].ParentInode)
			otherEq := func(g walk.EntryRecord) bool {
				_, gMtime, gOK := lookup.times(g.ParentInode)
				return gOK && ((liveOK && gMtime == liveParentMtime) || gMtime == ino.CTime)
			}
			otherGhost = findPreferredUnique(ghosts, otherEq, otherEq)
			if otherGhost != nil {
				creation = otherOf(ghosts, otherGhost)
			}
		}

	case len(ghosts) >= 3 && len(live) == 1:
		creation = findPreferredUnique(ghosts, creationEq, creationLt)

	case len(ghosts) == 1 && len(live) == 0:
		creation = &ghosts[0]
		deletion = &ghosts[0]

	case len(ghosts) == 2 && len(live) == 0:
		creation = findPreferredUnique(ghosts, creationEq, creationLt)
		if creation != nil {
			deletion = otherOf(ghosts, creation)
		} else {
			deletion = findPreferredUnique(ghosts, deletionEq, deletionGt)
			if deletion != nil {
				creation = otherOf(ghosts, deletion)
			}
		}

	case len(ghosts) >= 3 && len(live) == 0:
		creation = findPreferredUnique(ghosts, creationEq, creationLt)
		deletion = findPreferredUnique(ghosts, deletionEq, deletionGt)
	}

	return buildActions(inodeID, ino, live, ghosts, creation, deletion, otherGhost, lookup)
}
