package packaging

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jask/despacho/internal/api"
)

type PickerAction int

const (
	PickerActionNone PickerAction = iota
	PickerActionMoved
	PickerActionSelected
	PickerActionCancelled
)

type PickerResult struct {
	Action  PickerAction
	Package api.Package
}

// Picker narrows the package catalog as the operator types. Names are matched as
// subsequences first; small typos fall back to edit distance against each word.
type Picker struct {
	items    []api.Package
	filtered []api.Package
	query    string
	cursor   int
}

func NewPicker(catalog []api.Package) *Picker {
	p := &Picker{}
	p.SetItems(catalog)
	return p
}

func (p *Picker) SetItems(catalog []api.Package) {
	p.items = p.items[:0]
	for _, pkg := range catalog {
		if pkg.Active() {
			p.items = append(p.items, pkg)
		}
	}
	p.rebuild()
}

func (p *Picker) Query() string { return p.query }

func (p *Picker) Cursor() int { return p.cursor }

func (p *Picker) Items() []api.Package { return append([]api.Package(nil), p.filtered...) }

func (p *Picker) SetQuery(q string) {
	p.query = q
	p.rebuild()
}

// Focus moves the cursor onto the package with id, if it is visible.
func (p *Picker) Focus(id int) {
	for i, pkg := range p.filtered {
		if pkg.ID == id {
			p.cursor = i
			return
		}
	}
}

func (p *Picker) Current() (api.Package, bool) {
	if len(p.filtered) == 0 {
		return api.Package{}, false
	}
	return p.filtered[min(max(p.cursor, 0), len(p.filtered)-1)], true
}

func (p *Picker) HandleKey(keyName string) PickerResult {
	switch keyName {
	case "up", "ctrl+p":
		if p.cursor > 0 {
			p.cursor--
			return PickerResult{Action: PickerActionMoved}
		}
	case "down", "ctrl+n":
		if p.cursor < len(p.filtered)-1 {
			p.cursor++
			return PickerResult{Action: PickerActionMoved}
		}
	case "enter":
		if pkg, ok := p.Current(); ok {
			return PickerResult{Action: PickerActionSelected, Package: pkg}
		}
	case "esc":
		return PickerResult{Action: PickerActionCancelled}
	case "backspace":
		if r := []rune(p.query); len(r) > 0 {
			p.SetQuery(string(r[:len(r)-1]))
		}
	case " ":
		p.SetQuery(p.query + " ")
	default:
		if r := []rune(keyName); len(r) == 1 && r[0] >= 32 {
			p.SetQuery(p.query + keyName)
		}
	}
	return PickerResult{Action: PickerActionNone}
}

type scored struct {
	pkg   api.Package
	score int
	index int
}

func (p *Picker) rebuild() {
	q := strings.ToLower(strings.TrimSpace(p.query))
	rows := make([]scored, 0, len(p.items))
	for i, pkg := range p.items {
		ok, score := matchScore(strings.ToLower(pkg.Name), q)
		if !ok {
			continue
		}
		rows = append(rows, scored{pkg: pkg, score: score, index: i})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].index < rows[j].index
	})
	p.filtered = p.filtered[:0]
	for _, r := range rows {
		p.filtered = append(p.filtered, r.pkg)
	}
	if p.cursor >= len(p.filtered) {
		p.cursor = len(p.filtered) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

func matchScore(name, query string) (bool, int) {
	if query == "" {
		return true, 0
	}
	if ok, score := subsequenceScore(name, query); ok {
		return true, score
	}
	// tolerate a typo or two on single words ("envelop", "caxia")
	best := -1
	for _, word := range strings.Fields(name) {
		d := levenshtein.ComputeDistance(word, query)
		if d <= typoBudget(query) && (best < 0 || d < best) {
			best = d
		}
	}
	if best < 0 {
		return false, 0
	}
	return true, 5 - best
}

func typoBudget(q string) int {
	switch n := len([]rune(q)); {
	case n < 4:
		return 0
	case n < 7:
		return 1
	default:
		return 2
	}
}

func subsequenceScore(name, query string) (bool, int) {
	nr, qr := []rune(name), []rune(query)
	idx := make([]int, 0, len(qr))
	from := 0
	for _, ch := range qr {
		found := false
		for j := from; j < len(nr); j++ {
			if nr[j] == ch {
				idx = append(idx, j)
				from = j + 1
				found = true
				break
			}
		}
		if !found {
			return false, 0
		}
	}
	score := 10 + len(qr)
	if idx[0] == 0 {
		score += 10
	}
	for i := 1; i < len(idx); i++ {
		if idx[i] == idx[i-1]+1 {
			score += 3
		}
	}
	if name == query {
		score += 20
	}
	return true, score
}
