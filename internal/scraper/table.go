package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// headerTable is an HTML table whose columns are addressed by header label
type headerTable struct {
	cols map[string]int
	rows []*goquery.Selection
}

// findTable returns the first table in sel whose header row contains every
// required label. Labels are compared after normalizeLabel.
func findTable(sel *goquery.Selection, required ...string) (*headerTable, bool) {
	var found *headerTable

	sel.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Closest("table").IsSelection(table)
		})
		if rows.Length() == 0 {
			return true
		}

		// Header is the first row with <th> cells, or the first row otherwise
		headerIdx := 0
		rows.EachWithBreak(func(i int, tr *goquery.Selection) bool {
			if tr.ChildrenFiltered("th").Length() > 0 {
				headerIdx = i
				return false
			}
			return true
		})

		cols := make(map[string]int)
		rows.Eq(headerIdx).ChildrenFiltered("th, td").Each(func(i int, cell *goquery.Selection) {
			label := normalizeLabel(cell.Text())
			if _, dup := cols[label]; label != "" && !dup {
				cols[label] = i
			}
		})

		for _, label := range required {
			if _, ok := cols[label]; !ok {
				return true
			}
		}

		t := &headerTable{cols: cols}
		rows.Each(func(i int, tr *goquery.Selection) {
			if i > headerIdx && tr.ChildrenFiltered("td").Length() > 0 {
				t.rows = append(t.rows, tr)
			}
		})
		found = t
		return false
	})

	return found, found != nil
}

// cell returns the cleaned text of row's cell under label, or "" if the
// column or the cell is missing
func (t *headerTable) cell(row *goquery.Selection, label string) string {
	idx, ok := t.cols[label]
	if !ok {
		return ""
	}
	cells := row.ChildrenFiltered("td, th")
	if idx >= cells.Length() {
		return ""
	}
	return cleanText(cells.Eq(idx).Text())
}

// normalizeLabel lowercases a header label and strips punctuation the site
// sometimes appends ("Rang.", "Resultat:")
func normalizeLabel(s string) string {
	s = strings.ToLower(cleanText(s))
	return strings.TrimRight(s, ".:")
}

// cleanText collapses runs of whitespace, non-breaking spaces included
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
