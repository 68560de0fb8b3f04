// Package image implements the Image Reader component: it opens a raw
// disk or filesystem image, parses the ext2/3/4 superblock and
// block-group descriptor table, and exposes block- and inode-level random
// access to the rest of the engine.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// RootInode is the fixed inode number of the filesystem root directory.
const RootInode = 2

// Error taxonomy, spec.md §7.
var (
	ErrImageIO        = errors.New("image I/O error")
	ErrBadSuperblock  = errors.New("bad superblock")
	ErrInvalidInode   = errors.New("invalid inode")
	ErrMalformedBlock = errors.New("malformed block")
)

const (
	superblockOffset = 1024
	superblockSize   = 1024
	extMagic         = 0xEF53

	blockGroupDescSize32 = 32
)

type superblock struct {
	inodesCount      uint32
	blocksCountLo    uint32
	firstDataBlock   uint32
	logBlockSize     uint32
	blocksPerGroup   uint32
	inodesPerGroup   uint32
	magic            uint16
	inodeSize        uint16
	firstInode       uint32
	featureIncompat  uint32
	blockGroupNumLo  uint16
}

func parseSuperblock(b []byte) (superblock, error) {
	if len(b) < superblockSize {
		return superblock{}, fmt.Errorf("%w: short read (%d bytes)", ErrBadSuperblock, len(b))
	}
	sb := superblock{
		inodesCount:     binary.LittleEndian.Uint32(b[0x00:0x04]),
		blocksCountLo:   binary.LittleEndian.Uint32(b[0x04:0x08]),
		firstDataBlock:  binary.LittleEndian.Uint32(b[0x14:0x18]),
		logBlockSize:    binary.LittleEndian.Uint32(b[0x18:0x1C]),
		blocksPerGroup:  binary.LittleEndian.Uint32(b[0x20:0x24]),
		inodesPerGroup:  binary.LittleEndian.Uint32(b[0x28:0x2C]),
		magic:           binary.LittleEndian.Uint16(b[0x38:0x3A]),
		inodeSize:       128,
		featureIncompat: binary.LittleEndian.Uint32(b[0x60:0x64]),
	}
	if sb.magic != extMagic {
		return superblock{}, fmt.Errorf("%w: magic %#04x, want %#04x", ErrBadSuperblock, sb.magic, extMagic)
	}
	if len(b) >= 0x90 {
		sb.inodeSize = binary.LittleEndian.Uint16(b[0x58:0x5A])
		if sb.inodeSize == 0 {
			sb.inodeSize = 128
		}
		sb.firstInode = binary.LittleEndian.Uint32(b[0x54:0x58])
	}
	if sb.blocksPerGroup == 0 || sb.inodesPerGroup == 0 {
		return superblock{}, fmt.Errorf("%w: zero blocks/inodes per group", ErrBadSuperblock)
	}
	return sb, nil
}

func (sb superblock) blockSize() uint32 {
	return 1024 << sb.logBlockSize
}

func (sb superblock) numGroups() uint32 {
	n := sb.blocksCountLo / sb.blocksPerGroup
	if sb.blocksCountLo%sb.blocksPerGroup != 0 {
		n++
	}
	return n
}

type blockGroupDescriptor struct {
	inodeTable uint32
}

// Image is an opened ext2/3/4 volume, random-accessible by block number and
// inode id. All reads are relative to the start of the volume (block 0);
// if the underlying reader contains a partition table, Open has already
// re-based r onto the matching partition via a SectionReader.
type Image struct {
	r    io.ReaderAt
	size int64
	sb   superblock
	log  *logrus.Entry

	bgdCache map[uint32]blockGroupDescriptor
}

// Open parses the superblock of r (optionally preceded by an MBR or GPT
// partition table, see partition.go) and returns a ready-to-use Image.
func Open(r io.ReaderAt, size int64, log *logrus.Entry) (*Image, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	base, baseSize, err := locatePartition(r, size, log)
	if err != nil {
		return nil, fmt.Errorf("locating partition: %w", err)
	}
	if base != r {
		r = base
		size = baseSize
	}

	raw := make([]byte, superblockSize)
	n, err := r.ReadAt(raw, superblockOffset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading superblock: %v", ErrImageIO, err)
	}
	if n < superblockSize {
		return nil, fmt.Errorf("%w: superblock truncated", ErrBadSuperblock)
	}

	sb, err := parseSuperblock(raw)
	if err != nil {
		return nil, err
	}

	return &Image{
		r:        r,
		size:     size,
		sb:       sb,
		log:      log,
		bgdCache: make(map[uint32]blockGroupDescriptor),
	}, nil
}

// BlockSize returns the filesystem's block size in bytes.
func (im *Image) BlockSize() uint32 { return im.sb.blockSize() }

// NumGroups returns the number of block groups in the filesystem.
func (im *Image) NumGroups() uint32 { return im.sb.numGroups() }

// ReadBlock returns the raw contents of block n.
func (im *Image) ReadBlock(n uint64) ([]byte, error) {
	bs := int64(im.BlockSize())
	off := int64(n) * bs
	buf := make([]byte, bs)
	read, err := im.r.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading block %d: %v", ErrImageIO, n, err)
	}
	if int64(read) < bs {
		return nil, fmt.Errorf("%w: block %d truncated (%d of %d bytes)", ErrImageIO, n, read, bs)
	}
	return buf, nil
}

func (im *Image) readBlockGroupDescriptor(group uint32) (blockGroupDescriptor, error) {
	if bgd, ok := im.bgdCache[group]; ok {
		return bgd, nil
	}
	if group >= im.NumGroups() {
		return blockGroupDescriptor{}, fmt.Errorf("%w: group %d out of range (%d groups)", ErrBadSuperblock, group, im.NumGroups())
	}

	bgdTableBlock := uint64(im.sb.firstDataBlock) + 1
	bgdTableOffset := int64(bgdTableBlock)*int64(im.BlockSize()) + int64(group)*blockGroupDescSize32

	raw := make([]byte, blockGroupDescSize32)
	n, err := im.r.ReadAt(raw, bgdTableOffset)
	if err != nil && err != io.EOF {
		return blockGroupDescriptor{}, fmt.Errorf("%w: reading block group descriptor %d: %v", ErrImageIO, group, err)
	}
	if n < blockGroupDescSize32 {
		return blockGroupDescriptor{}, fmt.Errorf("%w: block group descriptor %d truncated", ErrImageIO, group)
	}

	bgd := blockGroupDescriptor{
		inodeTable: binary.LittleEndian.Uint32(raw[0x08:0x0C]),
	}
	im.bgdCache[group] = bgd
	return bgd, nil
}

// Inode is the subset of an on-disk ext2/3/4 inode record this engine
// cares about: mode, link count, the four timestamps, and the block
// pointer array.
// Reading a ghost-referenced inode may yield a zeroed or recycled record;
// callers accept it verbatim.
type Inode struct {
	Mode       uint16
	LinksCount uint16
	ATime      uint32
	CTime      uint32
	MTime      uint32
	DTime      uint32
	Block      [15]uint32 // 12 direct, then single/double/triple indirect
}

const (
	modeTypeMask = 0xF000
	modeDir      = 0x4000
)

// IsDir reports whether the inode's own mode bits mark it as a directory.
// The Tree Walker does not rely on this for traversal decisions (it trusts
// the directory-entry file_type byte instead, since a ghost inode's mode
// may be zeroed/recycled); the History Classifier uses it to choose
// mkdir/touch and rmdir/rm.
func (ino Inode) IsDir() bool {
	return ino.Mode&modeTypeMask == modeDir
}

// DirectBlock returns the i'th (0-11) direct block pointer.
func (ino Inode) DirectBlock(i int) uint32 { return ino.Block[i] }

// IndirectBlock returns the single- (1), double- (2) or triple- (3)
// indirect block pointer.
func (ino Inode) IndirectBlock(level int) uint32 { return ino.Block[11+level] }

// ReadInode reads inode id. id 0 and ids outside the valid range are
// ErrInvalidInode; whether that is fatal or silently recovered (returning a
// zeroed Inode) is a decision made by the caller, per spec.md §7 — this
// function always reports the truth.
func (im *Image) ReadInode(id uint32) (Inode, error) {
	if id == 0 || id > im.sb.inodesCount {
		return Inode{}, fmt.Errorf("%w: id %d out of range (%d inodes)", ErrInvalidInode, id, im.sb.inodesCount)
	}

	group := (id - 1) / im.sb.inodesPerGroup
	index := (id - 1) % im.sb.inodesPerGroup

	bgd, err := im.readBlockGroupDescriptor(group)
	if err != nil {
		return Inode{}, fmt.Errorf("%w: %v", ErrInvalidInode, err)
	}

	offset := int64(bgd.inodeTable)*int64(im.BlockSize()) + int64(index)*int64(im.sb.inodeSize)
	raw := make([]byte, 128)
	n, err := im.r.ReadAt(raw, offset)
	if err != nil && err != io.EOF {
		return Inode{}, fmt.Errorf("%w: reading inode %d: %v", ErrImageIO, id, err)
	}
	if n < 128 {
		return Inode{}, fmt.Errorf("%w: inode %d truncated", ErrInvalidInode, id)
	}

	var ino Inode
	ino.Mode = binary.LittleEndian.Uint16(raw[0x00:0x02])
	ino.LinksCount = binary.LittleEndian.Uint16(raw[0x1A:0x1C])
	ino.ATime = binary.LittleEndian.Uint32(raw[0x08:0x0C])
	ino.CTime = binary.LittleEndian.Uint32(raw[0x0C:0x10])
	ino.MTime = binary.LittleEndian.Uint32(raw[0x10:0x14])
	ino.DTime = binary.LittleEndian.Uint32(raw[0x14:0x18])
	for i := 0; i < 15; i++ {
		ino.Block[i] = binary.LittleEndian.Uint32(raw[0x28+i*4 : 0x28+i*4+4])
	}
	return ino, nil
}
