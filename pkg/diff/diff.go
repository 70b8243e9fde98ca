package diff

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"cardforge/pkg/schema"
	"cardforge/pkg/utils"

	"github.com/aryann/difflib"
)

type ChangeType int

const (
	Unchanged ChangeType = iota
	Added
	Removed
	Modified
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	}
	return "unchanged"
}

type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

type WordDelta struct {
	Op   Op
	Text string
}

type StringDiff struct {
	Old    string
	New    string
	Deltas []WordDelta
}

type FieldDiff struct {
	Path string
	Str  StringDiff
}

type RecordDiff struct {
	Fields         []FieldDiff
	GreetingsAdd   []string
	GreetingsDel   []string
	GreetingsEdit  []StringDiff
	AssetsChanged  bool
	WorkflowChange bool
}

func (d RecordDiff) Empty() bool {
	return len(d.Fields) == 0 && len(d.GreetingsAdd) == 0 && len(d.GreetingsDel) == 0 &&
		len(d.GreetingsEdit) == 0 && !d.AssetsChanged && !d.WorkflowChange
}

type EntryDiff struct {
	Name       string
	State      ChangeType
	FieldDiffs []FieldDiff
	KeysAdd    []string
	KeysDel    []string
}

// Records compares two versions of a character record field by field.
func Records(o, n schema.CharacterRecord) RecordDiff {
	var d RecordDiff
	for _, name := range schema.ScalarFields() {
		a, _ := o.Field(name)
		b, _ := n.Field(name)
		if *a != *b {
			d.Fields = append(d.Fields, FieldDiff{Path: name, Str: strDiff(*a, *b)})
		}
	}

	d.GreetingsAdd, d.GreetingsDel, d.GreetingsEdit = diffStringListSmart(
		slices.Concat(o.AlternateGreetings, o.GroupOnlyGreetings),
		slices.Concat(n.AlternateGreetings, n.GroupOnlyGreetings),
	)

	oa, na := dynamicTokens(o), dynamicTokens(n)
	d.AssetsChanged = !slices.Equal(oa, na)
	d.WorkflowChange = (o.Extensions.Workflow == nil) != (n.Extensions.Workflow == nil)
	return d
}

func dynamicTokens(r schema.CharacterRecord) []string {
	if r.Extensions.Risu == nil || r.Extensions.Risu.DynamicAssets == nil {
		return nil
	}
	return r.Extensions.Risu.DynamicAssets.AssetList
}

// Field diffs a single string value.
func Field(path, a, b string) FieldDiff {
	return FieldDiff{Path: path, Str: strDiff(a, b)}
}

// Lorebooks pairs entries by name (falling back to content similarity) and
// reports what changed between two lorebook versions.
func Lorebooks(oldE, newE []schema.LorebookEntry) []EntryDiff {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	nUsed := make([]bool, len(newE))
	var out []EntryDiff

	match := func(o schema.LorebookEntry) int {
		for j, n := range newE {
			if !nUsed[j] && norm(n.Name) == norm(o.Name) {
				return j
			}
		}
		bestJ, best := -1, 0.0
		for j, n := range newE {
			if nUsed[j] {
				continue
			}
			if s := utils.Similarity(o.Content, n.Content); s > best {
				bestJ, best = j, s
			}
		}
		if best >= 0.70 {
			return bestJ
		}
		return -1
	}

	for _, o := range oldE {
		j := match(o)
		if j < 0 {
			out = append(out, EntryDiff{Name: o.Name, State: Removed})
			continue
		}
		nUsed[j] = true
		n := newE[j]

		var fd []FieldDiff
		addFieldDiff := func(path, a, b string) {
			if a == b {
				return
			}
			fd = append(fd, FieldDiff{Path: path, Str: strDiff(a, b)})
		}
		addFieldDiff("name", o.Name, n.Name)
		addFieldDiff("content", o.Content, n.Content)
		addFieldDiff("comment", o.Comment, n.Comment)
		if o.InsertionOrder != n.InsertionOrder {
			addFieldDiff("insertion_order", fmt.Sprint(o.InsertionOrder), fmt.Sprint(n.InsertionOrder))
		}
		if o.Enabled != n.Enabled {
			addFieldDiff("enabled", fmt.Sprint(o.Enabled), fmt.Sprint(n.Enabled))
		}

		keysAdd, keysDel := diffSets(o.Keys, n.Keys)
		state := Unchanged
		if len(fd) > 0 || len(keysAdd) > 0 || len(keysDel) > 0 {
			state = Modified
		}
		out = append(out, EntryDiff{Name: n.Name, State: state, FieldDiffs: fd, KeysAdd: keysAdd, KeysDel: keysDel})
	}
	for j, n := range newE {
		if !nUsed[j] {
			out = append(out, EntryDiff{
				Name:       n.Name,
				State:      Added,
				FieldDiffs: []FieldDiff{{Path: "content", Str: strEq("", n.Content)}},
				KeysAdd:    slices.Clone(n.Keys),
			})
		}
	}
	slices.SortStableFunc(out, func(a, b EntryDiff) int { return cmp.Compare(a.State, b.State) })
	return out
}

func diffSets(a, b []string) (adds, dels []string) {
	for _, s := range b {
		if !slices.Contains(a, s) {
			adds = append(adds, s)
		}
	}
	for _, s := range a {
		if !slices.Contains(b, s) {
			dels = append(dels, s)
		}
	}
	return
}

func strEq(a, b string) StringDiff {
	return StringDiff{Old: a, New: b, Deltas: []WordDelta{{Op: Insert, Text: b}}}
}

func strDiff(a, b string) StringDiff {
	if a == b {
		return StringDiff{Old: a, New: b, Deltas: []WordDelta{{Op: Equal, Text: a}}}
	}
	at := utils.TokenizeWords(a)
	bt := utils.TokenizeWords(b)
	recs := difflib.Diff(at, bt)
	deltas := make([]WordDelta, 0, len(recs))
	for _, r := range recs {
		switch r.Delta {
		case difflib.Common:
			deltas = append(deltas, WordDelta{Op: Equal, Text: r.Payload})
		case difflib.LeftOnly:
			deltas = append(deltas, WordDelta{Op: Delete, Text: r.Payload})
		case difflib.RightOnly:
			deltas = append(deltas, WordDelta{Op: Insert, Text: r.Payload})
		}
	}
	return StringDiff{Old: a, New: b, Deltas: coalesceSpaces(deltas)}
}

func coalesceSpaces(in []WordDelta) []WordDelta {
	out := make([]WordDelta, 0, len(in))
	flush := func(op Op, buf *strings.Builder) {
		if buf.Len() == 0 {
			return
		}
		out = append(out, WordDelta{Op: op, Text: buf.String()})
		buf.Reset()
	}
	var curOp Op = -1
	var buf strings.Builder
	for _, d := range in {
		if strings.TrimSpace(d.Text) == "" && d.Op == Equal {
			buf.WriteString(d.Text)
			continue
		}
		if curOp != d.Op && curOp != -1 {
			flush(curOp, &buf)
		}
		if curOp != d.Op {
			curOp = d.Op
		}
		buf.WriteString(d.Text)
	}
	flush(curOp, &buf)
	return out
}

func diffStringListSmart(a, b []string) (adds, dels []string, edits []StringDiff) {
	usedB := make([]bool, len(b))
	for _, as := range a {
		bestJ, best := -1, 0.0
		for j, bs := range b {
			if usedB[j] {
				continue
			}
			s := utils.Similarity(as, bs)
			if s > best {
				bestJ, best = j, s
			}
		}
		if bestJ >= 0 && best >= 0.70 {
			if as != b[bestJ] {
				edits = append(edits, strDiff(as, b[bestJ]))
			}
			usedB[bestJ] = true
		} else {
			dels = append(dels, as)
		}
	}
	for j, bs := range b {
		if !usedB[j] {
			adds = append(adds, bs)
		}
	}
	return
}

// Render marks deletions as [-text-] and insertions as {+text+}.
func Render(sd StringDiff) string {
	var b strings.Builder
	for _, d := range sd.Deltas {
		switch d.Op {
		case Equal:
			b.WriteString(d.Text)
		case Insert:
			fmt.Fprintf(&b, "{+%s+}", d.Text)
		case Delete:
			fmt.Fprintf(&b, "[-%s-]", d.Text)
		}
	}
	return b.String()
}

// Stats counts inserted and deleted words.
func (sd StringDiff) Stats() (inserted, deleted int) {
	for _, d := range sd.Deltas {
		n := len(strings.Fields(d.Text))
		switch d.Op {
		case Insert:
			inserted += n
		case Delete:
			deleted += n
		}
	}
	return
}

func (d RecordDiff) Print(w io.Writer) {
	for _, f := range d.Fields {
		fmt.Fprintf(w, "%s: %s\n", f.Path, Render(f.Str))
	}
	for _, s := range d.GreetingsDel {
		fmt.Fprintf(w, "greeting: [-%s-]\n", s)
	}
	for _, s := range d.GreetingsAdd {
		fmt.Fprintf(w, "greeting: {+%s+}\n", s)
	}
	for _, sd := range d.GreetingsEdit {
		fmt.Fprintf(w, "greeting*: %s\n", Render(sd))
	}
	if d.AssetsChanged {
		fmt.Fprintln(w, "dynamic assets changed")
	}
}

func PrintEntries(w io.Writer, diffs []EntryDiff) {
	tag := map[ChangeType]string{
		Added:     "[+]",
		Removed:   "[-]",
		Modified:  "[~]",
		Unchanged: "[=]",
	}
	for _, e := range diffs {
		fmt.Fprintf(w, "%s %s\n", tag[e.State], e.Name)
		for _, f := range e.FieldDiffs {
			fmt.Fprintf(w, "    %s: %s\n", f.Path, Render(f.Str))
		}
		for _, k := range e.KeysDel {
			fmt.Fprintf(w, "    key: [-%s-]\n", k)
		}
		for _, k := range e.KeysAdd {
			fmt.Fprintf(w, "    key: {+%s+}\n", k)
		}
	}
}
