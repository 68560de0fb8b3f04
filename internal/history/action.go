// Package history implements the History Classifier and Action Emitter:
// given the inode-observation index the Tree Walker built, it infers a
// plausible sequence of create/delete/rename actions and emits them in
// timestamp order.
package history

// Action kinds, spec.md §4.4/§6.
const (
	KindMkdir = "mkdir"
	KindTouch = "touch"
	KindRmdir = "rmdir"
	KindRm    = "rm"
	KindMv    = "mv"
)

// unknownPath is the sentinel for an argument slot the Classifier could
// not resolve. Unlike inode ids (where 0 is spec.md's literal "no
// inode"/"unknown" sentinel), a full path is never the empty string, so ""
// is a safe, unambiguous unknown marker here.
const unknownPath = ""

// Action is one inferred filesystem operation. Timestamp is nil when
// unknown — spec.md's Design Note on timestamp sentinels: 0 is a valid
// real timestamp (the epoch) and also the literal meaning of "not deleted"
// for dtime, so it cannot double as "unknown" the way InodeId's 0 does.
type Action struct {
	Timestamp      *uint32
	Kind           string
	Args           []string // unknownPath ("") marks an unresolved argument
	AffectedDirs   []uint32 // 0 marks an unresolved inode, per spec.md's InodeId sentinel
	AffectedInodes []uint32
}

func ts(t uint32) *uint32 {
	v := t
	return &v
}
