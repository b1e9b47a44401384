// Package status computes the HEAD/WORKDIR/STAGE matrix of a checkout and
// classifies each path into a GitStatus.
package status

// MatrixStatus is [HEAD, WORKDIR, STAGE].
//
//	HEAD    0 absent, 1 present
//	WORKDIR 0 absent, 1 identical to HEAD, 2 different from HEAD
//	STAGE   0 absent, 1 identical to HEAD, 2 identical to WORKDIR, 3 different from both
type MatrixStatus [3]int

// GitStatus is the lossy classification of a MatrixStatus. A leading "*"
// marks the unstaged variant.
type GitStatus string

const (
	StatusAbsent          GitStatus = "absent"
	StatusAbsentUnstaged  GitStatus = "*absent"
	StatusAdded           GitStatus = "added"
	StatusAddedUnstaged   GitStatus = "*added"
	StatusUnmodified      GitStatus = "unmodified"
	StatusUnmodifiedDirty GitStatus = "*unmodified"
	StatusModified        GitStatus = "modified"
	StatusModifiedDirty   GitStatus = "*modified"
	StatusDeleted         GitStatus = "deleted"
	StatusDeletedUnstaged GitStatus = "*deleted"
	StatusUndeleted       GitStatus = "*undeleted"
	StatusIgnored         GitStatus = "ignored"
	StatusUnmerged        GitStatus = "unmerged"
)

var table = map[MatrixStatus]GitStatus{
	{0, 0, 0}: StatusAbsent,
	{0, 0, 3}: StatusAbsentUnstaged,
	{0, 2, 0}: StatusAddedUnstaged,
	{0, 2, 2}: StatusAdded,
	{0, 2, 3}: StatusAddedUnstaged,
	{1, 1, 1}: StatusUnmodified,
	{1, 1, 3}: StatusUnmodifiedDirty,
	{1, 2, 1}: StatusModifiedDirty,
	{1, 2, 2}: StatusModified,
	{1, 2, 3}: StatusModifiedDirty,
	{1, 0, 1}: StatusDeletedUnstaged,
	{1, 0, 3}: StatusDeletedUnstaged,
	{1, 0, 0}: StatusDeleted,
	{1, 2, 0}: StatusUndeleted,
	{1, 1, 0}: StatusUndeleted,
}

// MatrixToStatus maps a tuple to its GitStatus. Tuples outside the table,
// such as [0,1,2], are reported as false rather than coerced.
func MatrixToStatus(m MatrixStatus) (GitStatus, bool) {
	s, ok := table[m]
	return s, ok
}

// Tuples lists every tuple with a defined status.
func Tuples() []MatrixStatus {
	out := make([]MatrixStatus, 0, len(table))
	for m := range table {
		out = append(out, m)
	}
	return out
}

// Entry is one row of a status matrix. Status is empty for undefined tuples.
type Entry struct {
	Path   string       `json:"path"`
	Matrix MatrixStatus `json:"matrix"`
	Status GitStatus    `json:"status,omitempty"`
}

// Unstaged reports whether the WORKDIR code differs from the STAGE code.
func (e Entry) Unstaged() bool {
	return e.Matrix[1] != e.Matrix[2]
}
