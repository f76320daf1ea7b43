package compiler

import (
	"strconv"
	"strings"
)

// Expr is a node of a rule guard. Guards are built as trees and only turned into
// VCL text when a block is rendered.
type Expr interface {
	VCL() string
}

// AttributeKind is the request attribute a comparison reads.
type AttributeKind int

const (
	// AttrFullPath is "https://" + host + path, the subject of regex matchers.
	AttrFullPath AttributeKind = iota
	AttrQueryParam
	AttrHost
	AttrPath
	AttrExtension
	AttrCookie
)

// Attribute is the left-hand side of a comparison.
type Attribute struct {
	Kind AttributeKind
	// Name is the query parameter or cookie name.
	Name string
}

// VCL renders the attribute reference.
func (a Attribute) VCL() string {
	switch a.Kind {
	case AttrFullPath:
		return "var.cust_full_path"
	case AttrQueryParam:
		return `querystring.get(req.url, ` + Quote(a.Name) + `)`
	case AttrHost:
		return "req.http.host"
	case AttrPath:
		return "req.url.path"
	case AttrExtension:
		return "req.url.ext"
	case AttrCookie:
		return "req.http.cookie:" + a.Name
	default:
		return ""
	}
}

// Op is a VCL comparison operator.
type Op string

const (
	OpEqual    Op = "=="
	OpNotEqual Op = "!="
	OpMatch    Op = "~"
	OpNotMatch Op = "!~"
)

// IsRegex reports whether the operator treats its right-hand side as a regex.
func (o Op) IsRegex() bool {
	return o == OpMatch || o == OpNotMatch
}

// Compare tests one attribute against one literal or pattern.
type Compare struct {
	Attr  Attribute
	Op    Op
	Value string
}

func (c Compare) VCL() string {
	return c.Attr.VCL() + " " + string(c.Op) + " " + Quote(c.Value)
}

// NowAfter holds while the request time is strictly after Unix.
type NowAfter struct {
	Unix int64
}

func (n NowAfter) VCL() string {
	return "time.is_after(now, std.integer2time(" + strconv.FormatInt(n.Unix, 10) + "))"
}

// NowBefore holds while the request time is strictly before Unix.
type NowBefore struct {
	Unix int64
}

func (n NowBefore) VCL() string {
	return "time.is_after(std.integer2time(" + strconv.FormatInt(n.Unix, 10) + "), now)"
}

// Or is a disjunction of the alternatives of one matcher.
type Or []Expr

func (o Or) VCL() string {
	parts := make([]string, len(o))
	for i, e := range o {
		parts[i] = e.VCL()
	}
	return strings.Join(parts, " || ")
}

// And is the conjunction of all terms of a guard. Every term sits in its own
// parenthesis group and the whole conjunction is wrapped once more per extra term,
// so an n-term guard always opens with n parentheses.
type And []Expr

func (a And) VCL() string {
	if len(a) == 0 {
		return ""
	}
	parts := make([]string, len(a))
	for i, e := range a {
		parts[i] = e.VCL()
	}
	return strings.Repeat("(", len(a)) + strings.Join(parts, ") && (") + strings.Repeat(")", len(a))
}
