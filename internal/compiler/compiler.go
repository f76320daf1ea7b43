// Package compiler turns canonical redirect rules into the three Fastly VCL
// snippets that implement them: an exact-path table, the ordered chain of rule
// blocks followed by the resolution epilogue, and the error handler that issues
// the redirect.
//
// Compilation is pure. The same rules always produce byte-identical snippets and
// nothing is shared between calls.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"edge-redirector/internal/rules"
)

// Snippet names and the VCL subroutines they are attached to.
const (
	TableSnippet   = "cloudlet_redirect_table"
	LogicSnippet   = "cloudlet_redirect_logic"
	HandlerSnippet = "cloudlet_redirect_handler"

	TypeInit  = "init"
	TypeRecv  = "recv"
	TypeError = "error"
)

// Snippet is one named VCL snippet.
type Snippet struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Content string `json:"content" yaml:"content"`
}

// Artifacts are the snippets produced by one compile.
type Artifacts struct {
	Table   Snippet `json:"table" yaml:"table"`
	Logic   Snippet `json:"logic" yaml:"logic"`
	Handler Snippet `json:"handler" yaml:"handler"`
}

// Snippets returns the artifacts in upload order.
func (a Artifacts) Snippets() []Snippet {
	return []Snippet{a.Table, a.Logic, a.Handler}
}

// WarningKind classifies a non-fatal compile finding.
type WarningKind string

const (
	// WarnUnresolvedBackreference marks a \N token left as literal text.
	WarnUnresolvedBackreference WarningKind = "UnresolvedBackreference"
	// WarnNoConditions marks a pattern rule that was skipped for having nothing to test.
	WarnNoConditions WarningKind = "NoConditions"
)

// Warning is a non-fatal finding about one rule.
type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	RuleID  string      `json:"rule" yaml:"rule"`
	Message string      `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("Rule %s: %s (%s)", w.RuleID, w.Message, w.Kind)
}

// Block is a compiled pattern rule.
type Block struct {
	RuleID      string
	Guard       And
	Location    Location
	StatusCode  int
	QueryString string
}

// VCL renders the block; the first block of the chain opens with if, the rest with
// elseif.
func (b Block) VCL(first bool) string {
	var sb strings.Builder
	if first {
		sb.WriteString("\n  if ")
	} else {
		sb.WriteString(" elseif ")
	}
	sb.WriteString(b.Guard.VCL())
	sb.WriteString(" {\n")
	sb.WriteString("    set var.cust_location = " + b.Location.VCL() + ";\n")
	sb.WriteString("    set var.cust_priority = " + Quote(b.RuleID) + ";\n")
	sb.WriteString("    set var.cust_status_code = \"" + strconv.Itoa(b.StatusCode) + "\";\n")
	sb.WriteString("    set var.cust_use_query_string = \"" + b.QueryString + "\";\n")
	sb.WriteString("  }")
	return sb.String()
}

// Result is the outcome of one compile.
type Result struct {
	Artifacts  Artifacts
	Entries    []Entry
	Blocks     []Block
	Duplicates []string
	Warnings   []Warning
}

// Report renders the duplicate lines followed by the warnings, one per line.
func (r *Result) Report() string {
	var b strings.Builder
	for _, d := range r.Duplicates {
		b.WriteString(d + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString(w.String() + "\n")
	}
	return b.String()
}

// compilation owns the state of a single compile.
type compilation struct {
	seen     map[string]struct{}
	result   *Result
	chain    strings.Builder
	chainLen int
}

// Compile builds the snippets for rules, in order. Rules are expected to be
// normalized already.
func Compile(rs []rules.Rule) *Result {
	c := &compilation{
		seen:   make(map[string]struct{}),
		result: &Result{},
	}

	for _, r := range rs {
		if r.HasExactPath {
			c.addEntry(r)
			continue
		}
		c.addBlock(r)
	}

	return c.finish()
}

// CompilePayload normalizes a JSON or CSV payload and compiles it.
func CompilePayload(format string, payload []byte) (*Result, error) {
	rs, err := rules.Normalize(format, payload)
	if err != nil {
		return nil, err
	}
	return Compile(rs), nil
}

func (c *compilation) addEntry(r rules.Rule) {
	if _, dup := c.seen[r.ExactPath]; dup {
		c.result.Duplicates = append(c.result.Duplicates,
			fmt.Sprintf("Entry %s - %s is a duplicate, ignored.", r.ID, r.ExactPath))
		return
	}
	c.seen[r.ExactPath] = struct{}{}

	target := r.RedirectTemplate
	if r.UseRelativeURL {
		target = StripOrigin(target)
	}
	for _, token := range backreference.FindAllString(target, -1) {
		c.warn(WarnUnresolvedBackreference, r.ID,
			fmt.Sprintf("%s has no capture group to refer to in an exact path rule", token))
	}

	entry := Entry{Path: r.ExactPath, Record: NewRecord(r, target)}
	c.result.Entries = append(c.result.Entries, entry)
}

func (c *compilation) addBlock(r rules.Rule) {
	guard := BuildGuard(r)
	if len(guard) == 0 {
		c.warn(WarnNoConditions, r.ID, "pattern rule has no matchers and no active window, skipped")
		return
	}

	loc, unresolved := RenderLocation(r.RedirectTemplate, r.UseRelativeURL, captureGroups(r))
	for _, token := range unresolved {
		c.warn(WarnUnresolvedBackreference, r.ID,
			fmt.Sprintf("%s does not refer to a capture group of a regex matcher, kept as text", token))
	}

	block := Block{
		RuleID:      r.ID,
		Guard:       guard,
		Location:    loc,
		StatusCode:  r.StatusCode,
		QueryString: r.QueryStringFlag(),
	}
	c.chain.WriteString(block.VCL(c.chainLen == 0))
	c.chainLen++
	c.result.Blocks = append(c.result.Blocks, block)
}

func (c *compilation) warn(kind WarningKind, ruleID, msg string) {
	c.result.Warnings = append(c.result.Warnings, Warning{Kind: kind, RuleID: ruleID, Message: msg})
}

func (c *compilation) finish() *Result {
	var logic strings.Builder
	logic.WriteString(logicPrologue)
	if c.chainLen > 0 {
		logic.WriteString(c.chain.String())
		logic.WriteString("\n")
	}
	logic.WriteString(logicEpilogue)

	c.result.Artifacts = Artifacts{
		Table:   Snippet{Name: TableSnippet, Type: TypeInit, Content: renderTable(c.result.Entries)},
		Logic:   Snippet{Name: LogicSnippet, Type: TypeRecv, Content: logic.String()},
		Handler: Snippet{Name: HandlerSnippet, Type: TypeError, Content: handlerSnippet},
	}
	return c.result
}
