package diff

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffText scores a character-level edit diff: one minus the share of
// unchanged characters among all characters touched by the diff.
func DiffText(base, compare string) float64 {
	if base == compare {
		return 0
	}
	if base == "" || compare == "" {
		return 1
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base, compare, false)

	var total, unchanged int
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		total += n
		if d.Type == diffmatchpatch.DiffEqual {
			unchanged += n
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(unchanged)/float64(total)
}

// TextPatchContentType is the content type of TextPatch artifacts.
const TextPatchContentType = "text/x-diff"

// TextPatch renders the edit script from base to compare in patch format.
// It is the stored artifact of a changed text snapshot.
func TextPatch(base, compare string) []byte {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(base, compare)
	return []byte(dmp.PatchToText(patches))
}
