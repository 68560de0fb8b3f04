package engine

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/baharrsalmann/filesystem-recovery/internal/dirscan"
	"github.com/baharrsalmann/filesystem-recovery/internal/history"
	"github.com/baharrsalmann/filesystem-recovery/internal/image"
	"github.com/baharrsalmann/filesystem-recovery/internal/imagefixture"
)

// TestRun_SimpleCreate reproduces spec.md's S1 scenario: a single live
// file, no ghosts, no deletion. The engine should infer exactly one
// create action and a two-line tree.
func TestRun_SimpleCreate(t *testing.T) {
	b := imagefixture.NewBuilder(64, 16)
	root := b.DataBlock(0)

	block := make([]byte, imagefixture.BlockSize)
	copy(block, imagefixture.EncodeDirEntry(11, "b", dirscan.FileTypeRegular, imagefixture.BlockSize))
	b.SetBlockRaw(root, block)

	b.SetInode(image.RootInode, imagefixture.InodeSpec{Mode: 0x4000, Blocks: [15]uint32{root}})
	b.SetInode(11, imagefixture.InodeSpec{Mode: 0x8000, LinksCount: 1, ATime: 5, CTime: 5, MTime: 5})

	result, err := Run(bytes.NewReader(b.Bytes()), int64(len(b.Bytes())), nil)
	require.NoError(t, err)

	var stateBuf, historyBuf bytes.Buffer
	require.NoError(t, history.EmitTree(&stateBuf, result.TreeLines))
	require.NoError(t, history.EmitActions(&historyBuf, result.Actions))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "s1_state", stateBuf.Bytes())
	g.Assert(t, "s1_history", historyBuf.Bytes())
}

// TestRun_GhostDeletedFile reproduces spec.md's S3 scenario: one ghost,
// no live entries, a non-zero deletion time. Exactly one create and one
// delete are expected, with no rename chain (a single ghost never
// triggers one).
func TestRun_GhostDeletedFile(t *testing.T) {
	b := imagefixture.NewBuilder(64, 16)
	root := b.DataBlock(0)

	block := make([]byte, imagefixture.BlockSize)
	// The live entry that used to hold "a" has since been reused for an
	// unrelated unnamed slot; only the ghost in its slack survives.
	copy(block[0:8], imagefixture.EncodeDirEntry(0, "", dirscan.FileTypeUnknown, 40))
	copy(block[12:40], imagefixture.EncodeDirEntry(12, "a", dirscan.FileTypeRegular, 28))
	b.SetBlockRaw(root, block)

	b.SetInode(image.RootInode, imagefixture.InodeSpec{Mode: 0x4000, Blocks: [15]uint32{root}})
	b.SetInode(12, imagefixture.InodeSpec{Mode: 0x8000, ATime: 5, CTime: 5, MTime: 5, DTime: 50})

	result, err := Run(bytes.NewReader(b.Bytes()), int64(len(b.Bytes())), nil)
	require.NoError(t, err)

	var historyBuf bytes.Buffer
	require.NoError(t, history.EmitActions(&historyBuf, result.Actions))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "s3_history", historyBuf.Bytes())
}

// TestRun_EmptySubdirectory reproduces spec.md's S6 scenario: a directory
// with no children and no ghosts. The tree output should show it nested
// under root, and the history should show a single mkdir.
func TestRun_EmptySubdirectory(t *testing.T) {
	b := imagefixture.NewBuilder(64, 16)
	root := b.DataBlock(0)
	dDir := b.DataBlock(1)

	rootBlock := make([]byte, imagefixture.BlockSize)
	copy(rootBlock, imagefixture.EncodeDirEntry(13, "d", dirscan.FileTypeDirectory, imagefixture.BlockSize))
	b.SetBlockRaw(root, rootBlock)

	// An empty directory still carries "." and "..", which the scanner
	// must skip without treating them as ghosts or live children.
	dBlock := make([]byte, imagefixture.BlockSize)
	copy(dBlock[0:12], imagefixture.EncodeDirEntry(13, ".", dirscan.FileTypeDirectory, 12))
	copy(dBlock[12:24], imagefixture.EncodeDirEntry(image.RootInode, "..", dirscan.FileTypeDirectory, imagefixture.BlockSize-12))
	b.SetBlockRaw(dDir, dBlock)

	b.SetInode(image.RootInode, imagefixture.InodeSpec{Mode: 0x4000, Blocks: [15]uint32{root}})
	b.SetInode(13, imagefixture.InodeSpec{Mode: 0x4000, ATime: 5, CTime: 5, MTime: 5, Blocks: [15]uint32{dDir}})

	result, err := Run(bytes.NewReader(b.Bytes()), int64(len(b.Bytes())), nil)
	require.NoError(t, err)

	var stateBuf, historyBuf bytes.Buffer
	require.NoError(t, history.EmitTree(&stateBuf, result.TreeLines))
	require.NoError(t, history.EmitActions(&historyBuf, result.Actions))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "s6_state", stateBuf.Bytes())
	g.Assert(t, "s6_history", historyBuf.Bytes())
}

// TestRun_CrossDirMoveThenDelete reproduces spec.md's S4 scenario: a file
// created under one directory, moved to another, then deleted. The index
// ends up with two ghosts (one per directory it passed through) and no
// live entry; the classifier should chain a creation->deletion mv with an
// unknown timestamp alongside the create and delete actions.
func TestRun_CrossDirMoveThenDelete(t *testing.T) {
	b := imagefixture.NewBuilder(64, 16)
	root := b.DataBlock(0)
	aDir := b.DataBlock(1)
	bDir := b.DataBlock(2)

	rootBlock := make([]byte, imagefixture.BlockSize)
	copy(rootBlock[0:12], imagefixture.EncodeDirEntry(13, "a", dirscan.FileTypeDirectory, 12))
	copy(rootBlock[12:24], imagefixture.EncodeDirEntry(14, "b", dirscan.FileTypeDirectory, imagefixture.BlockSize-12))
	b.SetBlockRaw(root, rootBlock)

	// /a/x's slot was reclaimed by ".."'s inflated rec_len; the ghost of
	// "x" survives in the slack that leaves behind, parented at inode 13
	// ("a").
	aBlock := make([]byte, imagefixture.BlockSize)
	copy(aBlock[0:12], imagefixture.EncodeDirEntry(13, ".", dirscan.FileTypeDirectory, 12))
	copy(aBlock[12:24], imagefixture.EncodeDirEntry(image.RootInode, "..", dirscan.FileTypeDirectory, imagefixture.BlockSize-12))
	copy(aBlock[24:36], imagefixture.EncodeDirEntry(15, "x", dirscan.FileTypeRegular, 28))
	b.SetBlockRaw(aDir, aBlock)

	// Same shape under /b, parented at inode 14 ("b"): the file passed
	// through here too before being deleted, leaving a second ghost.
	bBlock := make([]byte, imagefixture.BlockSize)
	copy(bBlock[0:12], imagefixture.EncodeDirEntry(14, ".", dirscan.FileTypeDirectory, 12))
	copy(bBlock[12:24], imagefixture.EncodeDirEntry(image.RootInode, "..", dirscan.FileTypeDirectory, imagefixture.BlockSize-12))
	copy(bBlock[24:36], imagefixture.EncodeDirEntry(15, "x", dirscan.FileTypeRegular, 28))
	b.SetBlockRaw(bDir, bBlock)

	b.SetInode(image.RootInode, imagefixture.InodeSpec{Mode: 0x4000, Blocks: [15]uint32{root}})
	b.SetInode(13, imagefixture.InodeSpec{Mode: 0x4000, ATime: 5, MTime: 5, Blocks: [15]uint32{aDir}})
	b.SetInode(14, imagefixture.InodeSpec{Mode: 0x4000, ATime: 5, MTime: 20, Blocks: [15]uint32{bDir}})
	b.SetInode(15, imagefixture.InodeSpec{Mode: 0x8000, ATime: 5, CTime: 20, MTime: 5, DTime: 50})

	result, err := Run(bytes.NewReader(b.Bytes()), int64(len(b.Bytes())), nil)
	require.NoError(t, err)

	var historyBuf bytes.Buffer
	require.NoError(t, history.EmitActions(&historyBuf, result.Actions))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "s4_history", historyBuf.Bytes())
}
