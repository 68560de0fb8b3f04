package walk

import (
	"bytes"
	"testing"

	"github.com/baharrsalmann/filesystem-recovery/internal/dirscan"
	"github.com/baharrsalmann/filesystem-recovery/internal/image"
	"github.com/baharrsalmann/filesystem-recovery/internal/imagefixture"
)

func buildSimpleTree(t *testing.T) *image.Image {
	t.Helper()

	b := imagefixture.NewBuilder(64, 16)
	root := b.DataBlock(0)

	block := make([]byte, imagefixture.BlockSize)
	copy(block[0:40], imagefixture.EncodeDirEntry(11, "a", dirscan.FileTypeRegular, 40))
	// Slack after "a" holds a ghost directory entry whose inode (99) is
	// out of range for this fixture, exercising the zeroed-record path.
	copy(block[12:40], imagefixture.EncodeDirEntry(99, "old", dirscan.FileTypeDirectory, 28))
	b.SetBlockRaw(root, block)

	b.SetInode(image.RootInode, imagefixture.InodeSpec{
		Mode:   0x4000,
		Blocks: [15]uint32{root},
	})
	b.SetInode(11, imagefixture.InodeSpec{Mode: 0x8000, ATime: 10, CTime: 10, MTime: 10})

	img, err := image.Open(bytes.NewReader(b.Bytes()), int64(len(b.Bytes())), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return img
}

func TestWalk_LiveAndGhostInIndex(t *testing.T) {
	img := buildSimpleTree(t)
	w := New(img, nil)

	lines, idx, err := w.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(lines) == 0 || lines[0] != "- 2:root/" {
		t.Fatalf("lines = %v, want root line first", lines)
	}

	obsA, ok := idx[11]
	if !ok || len(obsA.Entries) != 1 || obsA.Entries[0].IsGhost {
		t.Fatalf("index[11] = %+v", idx[11])
	}

	obsGhost, ok := idx[99]
	if !ok || len(obsGhost.Entries) != 1 || !obsGhost.Entries[0].IsGhost {
		t.Fatalf("index[99] = %+v", idx[99])
	}
	if obsGhost.Inode != (image.Inode{}) {
		t.Errorf("unreadable ghost inode should be zeroed, got %+v", obsGhost.Inode)
	}
}

func TestWalk_GhostDirectoryLineAtEntryDepth(t *testing.T) {
	img := buildSimpleTree(t)
	w := New(img, nil)

	lines, _, err := w.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	for _, l := range lines {
		if l == "(99:old/)" {
			t.Fatalf("ghost directory line printed without its depth indent: %v", lines)
		}
	}

	found := false
	for _, l := range lines {
		if l == "-- (99:old/)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ghost directory line, got %v", lines)
	}
}

func TestWalk_DetectsCycleAndDoesNotInfinitelyRecurse(t *testing.T) {
	b := imagefixture.NewBuilder(64, 16)
	root := b.DataBlock(0)
	sub := b.DataBlock(1)

	rootBlock := make([]byte, imagefixture.BlockSize)
	copy(rootBlock[0:20], imagefixture.EncodeDirEntry(11, "sub", dirscan.FileTypeDirectory, 20))
	b.SetBlockRaw(root, rootBlock)

	subBlock := make([]byte, imagefixture.BlockSize)
	copy(subBlock[0:20], imagefixture.EncodeDirEntry(11, "loop", dirscan.FileTypeDirectory, 20))
	b.SetBlockRaw(sub, subBlock)

	b.SetInode(image.RootInode, imagefixture.InodeSpec{Mode: 0x4000, Blocks: [15]uint32{root}})
	b.SetInode(11, imagefixture.InodeSpec{Mode: 0x4000, Blocks: [15]uint32{sub}})

	img, err := image.Open(bytes.NewReader(b.Bytes()), int64(len(b.Bytes())), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	w := New(img, nil)
	lines, idx, err := w.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(idx[11].Entries) != 2 {
		t.Fatalf("index[11].Entries = %+v, want one from root and one self-referential", idx[11].Entries)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %v, want root + sub + loop with no further recursion", lines)
	}
}
