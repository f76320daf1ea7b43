// Package resolver evaluates a compiled rule set against a single request the way
// the generated VCL does at the edge. It is a dry run: nothing here talks to
// Fastly.
package resolver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"edge-redirector/internal/compiler"
	"edge-redirector/internal/rules"
)

var (
	// ErrInvalidURL is returned when the request URL cannot be parsed
	ErrInvalidURL = errors.New("invalid request url")

	// ErrUnsupportedPattern is returned when a regex cannot be compiled by Go's regexp engine
	ErrUnsupportedPattern = errors.New("pattern not supported by the resolver")
)

// Source says which half of the compiled logic produced a redirect.
type Source string

const (
	SourceNone      Source = ""
	SourceTable     Source = "table"
	SourceCondition Source = "condition"
)

// Request is the subset of an edge request the generated logic reads.
type Request struct {
	Host     string
	Path     string
	RawQuery string
	Cookies  map[string]string
	Now      time.Time
}

// NewRequest builds a Request from an absolute URL.
func NewRequest(rawURL string, now time.Time) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}

	return &Request{
		Host:     u.Host,
		Path:     p,
		RawQuery: u.RawQuery,
		Cookies:  map[string]string{},
		Now:      now,
	}, nil
}

// WithCookieHeader adds the cookies of a Cookie header value to the request.
func (r *Request) WithCookieHeader(header string) (*Request, error) {
	if strings.TrimSpace(header) == "" {
		return r, nil
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie header: %w", err)
	}
	for _, c := range cookies {
		r.Cookies[c.Name] = c.Value
	}
	return r, nil
}

// Decision is the outcome of resolving one request.
type Decision struct {
	Matched    bool   `json:"matched" yaml:"matched"`
	Source     Source `json:"source,omitempty" yaml:"source,omitempty"`
	RuleID     string `json:"rule,omitempty" yaml:"rule,omitempty"`
	StatusCode int    `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Location   string `json:"location,omitempty" yaml:"location,omitempty"`
}

// Resolver holds a compiled rule set ready for evaluation.
type Resolver struct {
	blocks   []compiler.Block
	table    map[string]compiler.Record
	patterns map[string]*regexp.Regexp
}

// New prepares res for evaluation. Every regex used by a guard is compiled up
// front so evaluation itself cannot fail.
func New(res *compiler.Result) (*Resolver, error) {
	r := &Resolver{
		blocks:   res.Blocks,
		table:    make(map[string]compiler.Record, len(res.Entries)),
		patterns: make(map[string]*regexp.Regexp),
	}

	for _, e := range res.Entries {
		r.table[e.Path] = e.Record
	}

	for _, b := range res.Blocks {
		for _, term := range b.Guard {
			if err := r.compilePatterns(b.RuleID, term); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Resolver) compilePatterns(ruleID string, e compiler.Expr) error {
	switch n := e.(type) {
	case compiler.Or:
		for _, alt := range n {
			if err := r.compilePatterns(ruleID, alt); err != nil {
				return err
			}
		}
	case compiler.Compare:
		if !n.Op.IsRegex() {
			return nil
		}
		if _, ok := r.patterns[n.Value]; ok {
			return nil
		}
		re, err := regexp.Compile(n.Value)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrUnsupportedPattern, ruleID, err)
		}
		r.patterns[n.Value] = re
	}
	return nil
}

// evaluation tracks the capture groups of the last successful regex match, which
// is what re.group.N reads in VCL.
type evaluation struct {
	req    *Request
	groups []string
}

// Resolve runs the rule chain and the table lookup for req and applies the
// priority tie-break between them.
func (r *Resolver) Resolve(req *Request) Decision {
	ev := &evaluation{req: req}

	var (
		cust      *compiler.Block
		custGroup []string
	)
	for i := range r.blocks {
		if r.eval(ev, r.blocks[i].Guard) {
			cust = &r.blocks[i]
			custGroup = ev.groups
			break
		}
	}

	dict, dictOK := r.table[req.Path]
	if dictOK && !dict.Window().Contains(req.Now.Unix()) {
		dictOK = false
	}

	switch {
	case cust != nil && dictOK:
		if rules.Atoi(cust.RuleID) < rules.Atoi(dict.ID) {
			return r.fromBlock(req, cust, custGroup)
		}
		return r.fromRecord(req, dict)
	case cust != nil:
		return r.fromBlock(req, cust, custGroup)
	case dictOK:
		return r.fromRecord(req, dict)
	default:
		return Decision{}
	}
}

func (r *Resolver) fromBlock(req *Request, b *compiler.Block, groups []string) Decision {
	return decision(req, SourceCondition, b.RuleID, b.StatusCode, b.QueryString, b.Location.Expand(groups))
}

func (r *Resolver) fromRecord(req *Request, rec compiler.Record) Decision {
	return decision(req, SourceTable, rec.ID, rec.StatusCode, rec.QueryString, rec.Target)
}

func decision(req *Request, src Source, id string, status int, qsFlag, location string) Decision {
	if qsFlag == "useQS" && req.RawQuery != "" {
		location += "?" + req.RawQuery
	}
	return Decision{
		Matched:    true,
		Source:     src,
		RuleID:     id,
		StatusCode: status,
		Reason:     compiler.ReasonPhrase(status),
		Location:   location,
	}
}

func (r *Resolver) eval(ev *evaluation, e compiler.Expr) bool {
	switch n := e.(type) {
	case compiler.And:
		for _, term := range n {
			if !r.eval(ev, term) {
				return false
			}
		}
		return true
	case compiler.Or:
		for _, alt := range n {
			if r.eval(ev, alt) {
				return true
			}
		}
		return false
	case compiler.Compare:
		return r.compare(ev, n)
	case compiler.NowAfter:
		return ev.req.Now.Unix() > n.Unix
	case compiler.NowBefore:
		return n.Unix > ev.req.Now.Unix()
	default:
		return false
	}
}

func (r *Resolver) compare(ev *evaluation, c compiler.Compare) bool {
	subject := attribute(ev.req, c.Attr)

	switch c.Op {
	case compiler.OpEqual:
		return subject == c.Value
	case compiler.OpNotEqual:
		return subject != c.Value
	case compiler.OpMatch:
		m := r.patterns[c.Value].FindStringSubmatch(subject)
		if m == nil {
			return false
		}
		ev.groups = m
		return true
	case compiler.OpNotMatch:
		return !r.patterns[c.Value].MatchString(subject)
	default:
		return false
	}
}

// attribute reads a request attribute. Absent query parameters and cookies read
// as the empty string.
func attribute(req *Request, a compiler.Attribute) string {
	switch a.Kind {
	case compiler.AttrFullPath:
		return "https://" + req.Host + req.Path
	case compiler.AttrQueryParam:
		// ParseQuery keeps the pairs it could decode when another pair is malformed.
		values, _ := url.ParseQuery(req.RawQuery)
		return values.Get(a.Name)
	case compiler.AttrHost:
		return req.Host
	case compiler.AttrPath:
		return req.Path
	case compiler.AttrExtension:
		return strings.TrimPrefix(path.Ext(req.Path), ".")
	case compiler.AttrCookie:
		return req.Cookies[a.Name]
	default:
		return ""
	}
}
