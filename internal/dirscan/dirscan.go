// Package dirscan implements the Directory Block Scanner: it decodes the
// live directory entries in a single ext2/3/4 directory block, and
// salvages ghost entries surviving in the slack space each live entry
// leaves behind.
package dirscan

import (
	"encoding/binary"
)

// File-type byte values from the directory entry header (the low bits of
// ext2's file_type field; this engine only distinguishes "directory" from
// "everything else").
const (
	FileTypeUnknown   = 0
	FileTypeRegular   = 1
	FileTypeDirectory = 2
)

const entryHeaderSize = 8

// Entry is a single directory-entry observation, live or ghost. It is the
// sum type spec.md's Design Notes recommend for LiveEntry/GhostEntry: one
// struct, tagged by IsGhost.
type Entry struct {
	Inode       uint32
	Name        string
	FileType    uint8
	ParentInode uint32
	FullPath    string
	IsGhost     bool
}

// IsDir reports whether the directory-entry file_type byte marks this
// entry as a directory. The Tree Walker trusts this over the inode's own
// mode bits, because a ghost's referenced inode may have been recycled or
// zeroed by the time it is read back.
func (e Entry) IsDir() bool {
	return e.FileType == FileTypeDirectory
}

func alignUp4(n int) int {
	return (n + 3) &^ 3
}

func joinPath(parentPath, name string) string {
	if parentPath == "" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// Scan decodes block, the raw contents of a directory data block belonging
// to parentInode (whose own full path is currentPath, "" for the root),
// and returns its live entries and any ghost entries salvaged from slack
// space. "." and ".." are never reported, live or ghost.
//
// A malformed entry header (rec_len == 0) terminates the scan of this
// block early; whatever was already decoded is still returned, per
// spec.md §7's MalformedDirBlock handling.
func Scan(block []byte, parentInode uint32, currentPath string) (live []Entry, ghosts []Entry) {
	liveInodes := make(map[uint32]bool)

	offset := 0
	for offset+entryHeaderSize <= len(block) {
		inode := binary.LittleEndian.Uint32(block[offset : offset+4])
		recLen := binary.LittleEndian.Uint16(block[offset+4 : offset+6])
		nameLen := int(block[offset+6])
		fileType := block[offset+7]

		if recLen == 0 {
			break
		}

		if inode != 0 {
			nameEnd := offset + entryHeaderSize + nameLen
			if nameEnd > len(block) {
				nameEnd = len(block)
			}
			if nameEnd > offset+entryHeaderSize {
				name := string(block[offset+entryHeaderSize : nameEnd])
				if name != "." && name != ".." {
					liveInodes[inode] = true
					live = append(live, Entry{
						Inode:       inode,
						Name:        name,
						FileType:    fileType,
						ParentInode: parentInode,
						FullPath:    joinPath(currentPath, name),
					})
				}
			}
		}

		occupied := alignUp4(entryHeaderSize + nameLen)
		slackStart := offset + occupied
		slackEnd := offset + int(recLen)
		if slackEnd > len(block) {
			slackEnd = len(block)
		}
		if slackEnd > slackStart {
			ghosts = append(ghosts, scanSlack(block, slackStart, slackEnd, parentInode, currentPath)...)
		}

		offset += int(recLen)
	}

	if len(ghosts) == 0 {
		return live, nil
	}

	filtered := ghosts[:0]
	for _, g := range ghosts {
		if !liveInodes[g.Inode] {
			filtered = append(filtered, g)
		}
	}
	return live, filtered
}

// scanSlack walks the slack space left after a live entry's occupied
// bytes, at 4-byte-aligned offsets, salvaging directory-entry-shaped
// ghosts. Candidates that don't look like a plausible entry are rejected
// and scanning resumes 4 bytes later, rather than abandoning the rest of
// the slack region.
func scanSlack(block []byte, start, end int, parentInode uint32, currentPath string) []Entry {
	var ghosts []Entry

	for offset := start; offset+entryHeaderSize <= end; {
		inode := binary.LittleEndian.Uint32(block[offset : offset+4])
		recLen := binary.LittleEndian.Uint16(block[offset+4 : offset+6])
		nameLen := int(block[offset+6])
		fileType := block[offset+7]

		if inode == 0 || recLen == 0 || nameLen == 0 || nameLen > 255 || offset+entryHeaderSize+nameLen > end {
			offset += 4
			continue
		}

		name := string(block[offset+entryHeaderSize : offset+entryHeaderSize+nameLen])
		occupied := alignUp4(entryHeaderSize + nameLen)

		if name != "." && name != ".." {
			ghosts = append(ghosts, Entry{
				Inode:       inode,
				Name:        name,
				FileType:    fileType,
				ParentInode: parentInode,
				FullPath:    joinPath(currentPath, name),
				IsGhost:     true,
			})
		}

		offset += occupied
	}

	return ghosts
}
