package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"edge-redirector/internal/rules"
)

// TableName is the edge dictionary holding exact-path redirects.
const TableName = "path_redirect"

// recordPattern decodes a table record. The epilogue uses the same expression.
const recordPattern = `^(\d+)\|(\d+)\|([^|]*)\|(\d+)\|(useQS|noQS)\|(.*)$`

var recordRegexp = regexp.MustCompile(recordPattern)

// Record is one decoded exact-path table value.
type Record struct {
	Start       int64
	End         int64
	ID          string
	StatusCode  int
	QueryString string
	Target      string
}

// NewRecord builds the table value for an exact-path rule.
func NewRecord(r rules.Rule, target string) Record {
	rec := Record{
		ID:          r.ID,
		StatusCode:  r.StatusCode,
		QueryString: r.QueryStringFlag(),
		Target:      target,
	}
	if r.Window.Active() {
		rec.Start = r.Window.Start
		rec.End = r.Window.End
	}
	return rec
}

// String encodes the record as start|end|id|statusCode|qsFlag|target.
func (r Record) String() string {
	return strings.Join([]string{
		strconv.FormatInt(r.Start, 10),
		strconv.FormatInt(r.End, 10),
		r.ID,
		strconv.Itoa(r.StatusCode),
		r.QueryString,
		r.Target,
	}, "|")
}

// Window returns the record's active window.
func (r Record) Window() *rules.Window {
	return &rules.Window{Start: r.Start, End: r.End}
}

// ParseRecord decodes a table value the way the epilogue does.
func ParseRecord(s string) (Record, error) {
	m := recordRegexp.FindStringSubmatch(s)
	if m == nil {
		return Record{}, fmt.Errorf("table record %q does not match %s", s, recordPattern)
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("table record start: %w", err)
	}
	end, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("table record end: %w", err)
	}
	code, err := strconv.Atoi(m[4])
	if err != nil {
		return Record{}, fmt.Errorf("table record status: %w", err)
	}

	return Record{Start: start, End: end, ID: m[3], StatusCode: code, QueryString: m[5], Target: m[6]}, nil
}

// Entry is one exact-path table line.
type Entry struct {
	Path   string
	Record Record
}

// VCL renders the entry as a table line.
func (e Entry) VCL() string {
	return "  " + Quote(e.Path) + " : " + Quote(e.Record.String()) + ",\n"
}

func renderTable(entries []Entry) string {
	var b strings.Builder
	b.WriteString("\n// cloudlet_redirect_table begins\n\ntable " + TableName + " {\n")
	for _, e := range entries {
		b.WriteString(e.VCL())
	}
	b.WriteString("}\n")
	return b.String()
}
