package dag

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
)

// VerifyReport summarises an integrity check of everything reachable from HEAD.
type VerifyReport struct {
	Commits     int
	Trees       int
	Blobs       int
	Unreachable int // stored objects no commit refers to, e.g. blobs still only staged
	Problems    []string
}

// OK reports whether the check found nothing wrong.
func (r *VerifyReport) OK() bool {
	return len(r.Problems) == 0
}

func (r *VerifyReport) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// verifyHistory re-reads every object reachable from head, checking each
// against its digest and every reference for a stored target. It keeps going
// past problems; only a failure to list the store is returned as an error.
func verifyHistory(store *ObjectStore, cl *CommitLog, head gocid.Cid) (*VerifyReport, error) {
	report := &VerifyReport{}
	reached := make(map[string]bool)
	visit := func(c gocid.Cid) bool {
		if reached[c.KeyString()] {
			return false
		}
		reached[c.KeyString()] = true
		return true
	}

	for current := head; current.Defined(); {
		if !visit(current) {
			report.problem("commit %s appears twice in history", current)
			break
		}
		commit, err := cl.GetCommit(current)
		if err != nil {
			report.problem("commit %s: %s", current, err)
			break
		}
		report.Commits++

		if visit(commit.Tree) {
			tree, err := GetTree(store, commit.Tree)
			if err != nil {
				report.problem("commit %s tree %s: %s", current, commit.Tree, err)
			} else {
				report.Trees++
				for _, e := range tree.Entries {
					if !visit(e.Blob) {
						continue
					}
					if _, err := store.Get(e.Blob); err != nil {
						report.problem("tree %s path %q blob %s: %s", tree.ID, e.Path, e.Blob, err)
						continue
					}
					report.Blobs++
				}
			}
		}

		if commit.Parent.Defined() && !store.Has(commit.Parent) {
			report.problem("commit %s parent %s is not stored", current, commit.Parent)
			break
		}
		current = commit.Parent
	}

	keys, err := store.Keys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if !reached[k.KeyString()] {
			report.Unreachable++
		}
	}
	return report, nil
}
