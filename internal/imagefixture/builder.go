// Package imagefixture builds small, entirely synthetic ext2 images in
// memory for tests. It exists only to give package _test.go files across
// this module a single, shared way to construct a minimal valid
// superblock/BGDT/inode-table layout without shelling out to mkfs — this
// repo never runs external tools, in tests or otherwise.
package imagefixture

import (
	"encoding/binary"
)

const (
	BlockSize  = 1024
	InodeSize  = 128
	inodeTable = 5 // first block of the inode table, after boot/superblock/BGDT/bitmaps
)

// Builder assembles a single-block-group ext2 image byte-for-byte.
type Builder struct {
	numBlocks int
	numInodes int
	buf       []byte
	dataStart int
}

// NewBuilder allocates a zeroed image of numBlocks blocks (at BlockSize
// each) with room for numInodes inodes in a single block group.
func NewBuilder(numBlocks, numInodes int) *Builder {
	inodeTableBlocks := (numInodes*InodeSize + BlockSize - 1) / BlockSize
	dataStart := inodeTable + inodeTableBlocks

	b := &Builder{
		numBlocks: numBlocks,
		numInodes: numInodes,
		buf:       make([]byte, numBlocks*BlockSize),
		dataStart: dataStart,
	}
	b.writeSuperblock()
	b.writeBlockGroupDescriptor()
	return b
}

// DataBlock returns the block number of the n'th data block available for
// test content (directory blocks, indirect blocks, ...).
func (b *Builder) DataBlock(n int) uint32 {
	return uint32(b.dataStart + n)
}

func (b *Builder) blockAt(n uint32) []byte {
	off := int(n) * BlockSize
	return b.buf[off : off+BlockSize]
}

func (b *Builder) writeSuperblock() {
	sb := b.buf[1024:2048]
	binary.LittleEndian.PutUint32(sb[0x00:0x04], uint32(b.numInodes))
	binary.LittleEndian.PutUint32(sb[0x04:0x08], uint32(b.numBlocks))
	binary.LittleEndian.PutUint32(sb[0x14:0x18], 1) // first_data_block (1KB blocks)
	binary.LittleEndian.PutUint32(sb[0x18:0x1C], 0) // log_block_size -> 1024 << 0
	binary.LittleEndian.PutUint32(sb[0x20:0x24], uint32(b.numBlocks))
	binary.LittleEndian.PutUint32(sb[0x28:0x2C], uint32(b.numInodes))
	binary.LittleEndian.PutUint16(sb[0x38:0x3A], 0xEF53)
	binary.LittleEndian.PutUint16(sb[0x58:0x5A], InodeSize)
	binary.LittleEndian.PutUint32(sb[0x54:0x58], 11)
}

func (b *Builder) writeBlockGroupDescriptor() {
	bgd := b.blockAt(2)[0:32]
	binary.LittleEndian.PutUint32(bgd[0x00:0x04], 3) // block bitmap
	binary.LittleEndian.PutUint32(bgd[0x04:0x08], 4) // inode bitmap
	binary.LittleEndian.PutUint32(bgd[0x08:0x0C], uint32(inodeTable))
}

// InodeSpec is the subset of an inode record tests typically need to set.
type InodeSpec struct {
	Mode       uint16
	LinksCount uint16
	ATime      uint32
	CTime      uint32
	MTime      uint32
	DTime      uint32
	Blocks     [15]uint32
}

// SetInode writes spec into inode id's on-disk record.
func (b *Builder) SetInode(id uint32, spec InodeSpec) {
	group := (id - 1) / uint32(b.numInodes)
	index := (id - 1) % uint32(b.numInodes)
	_ = group // single block group in this fixture

	off := inodeTable*BlockSize + int(index)*InodeSize
	raw := b.buf[off : off+InodeSize]

	binary.LittleEndian.PutUint16(raw[0x00:0x02], spec.Mode)
	binary.LittleEndian.PutUint16(raw[0x1A:0x1C], spec.LinksCount)
	binary.LittleEndian.PutUint32(raw[0x08:0x0C], spec.ATime)
	binary.LittleEndian.PutUint32(raw[0x0C:0x10], spec.CTime)
	binary.LittleEndian.PutUint32(raw[0x10:0x14], spec.MTime)
	binary.LittleEndian.PutUint32(raw[0x14:0x18], spec.DTime)
	for i := 0; i < 15; i++ {
		binary.LittleEndian.PutUint32(raw[0x28+i*4:0x28+i*4+4], spec.Blocks[i])
	}
}

// SetBlockRaw overwrites block n's entire contents with data, which must
// be exactly BlockSize bytes.
func (b *Builder) SetBlockRaw(n uint32, data []byte) {
	copy(b.blockAt(n), data)
}

// Bytes returns the finished image.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// EncodeDirEntry renders one directory-entry header + name, the way a
// live entry (or a deliberately crafted ghost) looks on disk. The caller
// places the result at the desired block offset; recLen may legitimately
// exceed the occupied size, to leave slack space for a subsequent ghost.
func EncodeDirEntry(inode uint32, name string, fileType uint8, recLen uint16) []byte {
	out := make([]byte, recLen)
	binary.LittleEndian.PutUint32(out[0:4], inode)
	binary.LittleEndian.PutUint16(out[4:6], recLen)
	out[6] = byte(len(name))
	out[7] = fileType
	copy(out[8:8+len(name)], name)
	return out
}
