// Package walk implements the Tree Walker & Indexer: it recurses over the
// directory tree starting at the root inode, following both live entries
// and salvaged ghost entries, and builds the inode-observation index that
// the History Classifier consumes.
package walk

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/baharrsalmann/filesystem-recovery/internal/dirscan"
	"github.com/baharrsalmann/filesystem-recovery/internal/image"
)

// EntryRecord is one observation of an inode appearing, live or ghost,
// under some parent directory.
type EntryRecord struct {
	FullPath    string
	Name        string
	ParentInode uint32
	FileType    uint8
	IsGhost     bool
}

// IsDir reports whether the directory-entry file_type byte that produced
// this record marked it as a directory.
func (r EntryRecord) IsDir() bool {
	return r.FileType == dirscan.FileTypeDirectory
}

// InodeObservation cross-references everywhere a single inode was
// observed (live, ghost, or both) with the on-disk inode record itself.
type InodeObservation struct {
	Inode   image.Inode
	Entries []EntryRecord
}

// Index maps inode id to its observation. It is the central shared
// artifact between the Tree Walker and the History Classifier.
type Index map[uint32]*InodeObservation

// Walker walks an Image's directory tree, producing both the augmented
// tree listing (state output) and the Index the Classifier needs.
type Walker struct {
	img     *image.Image
	log     *logrus.Entry
	index   Index
	visited map[uint32]bool
}

// New constructs a Walker over img.
func New(img *image.Image, log *logrus.Entry) *Walker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Walker{
		img:     img,
		log:     log,
		index:   make(Index),
		visited: make(map[uint32]bool),
	}
}

// Walk traverses the tree from the root inode and returns the state-output
// lines (spec.md §6's tree grammar) and the completed inode index.
func (w *Walker) Walk() ([]string, Index, error) {
	rootInode, err := w.img.ReadInode(image.RootInode)
	if err != nil {
		return nil, nil, fmt.Errorf("reading root inode: %w", err)
	}
	w.visited[image.RootInode] = true

	lines := []string{fmt.Sprintf("- %d:root/", image.RootInode)}
	children, err := w.descend(rootInode, image.RootInode, 1, "", false)
	if err != nil {
		return nil, nil, err
	}
	lines = append(lines, children...)
	return lines, w.index, nil
}

// descend reads dirInode's (at inodeNum, ownDepth, ownPath) directory
// blocks in spec.md §4.3 precedence order and visits every live and ghost
// entry found. suppress propagates "this subtree is beneath a ghost
// directory, so don't emit output lines" down from the caller.
func (w *Walker) descend(dirInode image.Inode, inodeNum uint32, ownDepth int, ownPath string, suppress bool) ([]string, error) {
	var lines []string

	for _, blockNum := range w.directoryBlocks(dirInode) {
		data, err := w.img.ReadBlock(blockNum)
		if err != nil {
			w.log.WithFields(logrus.Fields{"inode": inodeNum, "block": blockNum}).WithError(err).Warn("failed to read directory block, skipping")
			continue
		}

		live, ghosts := dirscan.Scan(data, inodeNum, ownPath)

		for _, e := range live {
			out, err := w.visitEntry(e, ownDepth+1, suppress)
			if err != nil {
				return lines, err
			}
			lines = append(lines, out...)
		}
		for _, g := range ghosts {
			out, err := w.visitEntry(g, ownDepth+1, suppress)
			if err != nil {
				return lines, err
			}
			lines = append(lines, out...)
		}
	}

	return lines, nil
}

// visitEntry records e in the index, formats its state-output line (if
// not suppressed), and recurses into it if it is a directory that has not
// already been visited in this walk.
func (w *Walker) visitEntry(e dirscan.Entry, depth int, suppress bool) ([]string, error) {
	obs, isNew := w.index[e.Inode]
	if !isNew {
		ino, err := w.img.ReadInode(e.Inode)
		if err != nil {
			if !e.IsGhost {
				return nil, fmt.Errorf("reading inode %d referenced live from %q: %w", e.Inode, e.FullPath, err)
			}
			w.log.WithFields(logrus.Fields{"inode": e.Inode, "path": e.FullPath}).WithError(err).Warn("ghost-referenced inode unreadable, using zeroed record")
			ino = image.Inode{}
		}
		obs = &InodeObservation{Inode: ino}
		w.index[e.Inode] = obs
	}

	if !e.IsGhost {
		for _, prior := range obs.Entries {
			if !prior.IsGhost && prior.ParentInode != e.ParentInode {
				w.log.WithFields(logrus.Fields{"inode": e.Inode}).Warn("hard link detected, history for this inode may be unreliable")
				break
			}
		}
	}
	obs.Entries = append(obs.Entries, EntryRecord{
		FullPath:    e.FullPath,
		Name:        e.Name,
		ParentInode: e.ParentInode,
		FileType:    e.FileType,
		IsGhost:     e.IsGhost,
	})

	var out []string
	if !suppress {
		out = append(out, formatEntry(e, depth))
	}

	if !e.IsDir() {
		return out, nil
	}
	if w.visited[e.Inode] {
		return out, nil
	}
	w.visited[e.Inode] = true

	childSuppress := suppress || e.IsGhost
	sub, err := w.descend(obs.Inode, e.Inode, depth, e.FullPath, childSuppress)
	if err != nil {
		return out, err
	}
	return append(out, sub...), nil
}

func formatEntry(e dirscan.Entry, depth int) string {
	indent := strings.Repeat("-", depth)
	switch {
	case e.IsGhost && e.IsDir():
		return fmt.Sprintf("%s (%d:%s/)", indent, e.Inode, e.Name)
	case e.IsGhost:
		return fmt.Sprintf("%s (%d:%s)", indent, e.Inode, e.Name)
	case e.IsDir():
		return fmt.Sprintf("%s %d:%s/", indent, e.Inode, e.Name)
	default:
		return fmt.Sprintf("%s %d:%s", indent, e.Inode, e.Name)
	}
}

// directoryBlocks enumerates dirInode's data blocks in spec.md §4.3
// precedence order: 12 direct pointers, then single-, double-, and
// triple-indirect, each terminated by the first zero pointer.
func (w *Walker) directoryBlocks(dirInode image.Inode) []uint64 {
	var blocks []uint64

	for i := 0; i < 12; i++ {
		b := dirInode.DirectBlock(i)
		if b == 0 {
			break
		}
		blocks = append(blocks, uint64(b))
	}

	for level := 1; level <= 3; level++ {
		ptr := dirInode.IndirectBlock(level)
		if ptr == 0 {
			continue
		}
		blocks = append(blocks, w.collectIndirect(uint64(ptr), level)...)
	}

	return blocks
}

func (w *Walker) collectIndirect(blockNum uint64, level int) []uint64 {
	data, err := w.img.ReadBlock(blockNum)
	if err != nil {
		w.log.WithFields(logrus.Fields{"block": blockNum, "level": level}).WithError(err).Warn("failed to read indirect block, skipping")
		return nil
	}

	pointersPerBlock := len(data) / 4
	var result []uint64
	for i := 0; i < pointersPerBlock; i++ {
		ptr := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		if ptr == 0 {
			break
		}
		if level == 1 {
			result = append(result, uint64(ptr))
		} else {
			result = append(result, w.collectIndirect(uint64(ptr), level-1)...)
		}
	}
	return result
}

// SortedInodes returns the inode ids present in idx in ascending order,
// the deterministic per-inode processing order the Classifier relies on.
func SortedInodes(idx Index) []uint32 {
	ids := make([]uint32, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
