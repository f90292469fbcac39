package insights

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrRejectedSQL = errors.New("sql rejected")

const dateLayout = "2006-01-02"

type GuardOptions struct {
	// Tables the query may read. Database prefixes are ignored.
	Tables []string
	// DateColumn must carry a lower bound no older than MaxDaysLookback.
	DateColumn      string
	MaxDaysLookback int
	Today           time.Time
}

var (
	blockedRe = regexp.MustCompile(`\b(insert|update|delete|merge|drop|alter|create|truncate|grant|revoke|call|execute|prepare|deallocate|msck|unload)\b`)
	fromKwRe  = regexp.MustCompile(`\bfrom\b`)
	cteRe     = regexp.MustCompile(`(?:\bwith|,)\s*([a-z0-9_]+)\s+as\s*\(`)
	// extract(year from dt) and friends use FROM without naming a table
	fromFuncRe = regexp.MustCompile(`\b(?:extract|trim|substring)\s*\([^()]*\)`)
	literalRe  = regexp.MustCompile(`'[^']*'`)
	tableRefRe = regexp.MustCompile(`^"?[a-z0-9_]+"?(?:\."?[a-z0-9_]+"?)?$`)
	joinRe     = regexp.MustCompile(`\b(?:(?:inner|left|right|full|cross|natural)\s+)?(?:outer\s+)?join\b`)
	condRe     = regexp.MustCompile(`\b(?:on|using)\b`)
	// clause keywords that end a FROM list or a predicate
	clauseEndRe = regexp.MustCompile(`\b(?:where|group|order|limit|having|union|except|intersect|window|offset)\b`)
	predStartRe = regexp.MustCompile(`\b(?:where|on|having)\b`)
	orRe        = regexp.MustCompile(`\bor\b`)
)

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejectedSQL, fmt.Sprintf(format, args...))
}

// ValidateSQL accepts a single read-only SELECT over the allowed tables
// with a bounded date predicate.
func ValidateSQL(sql string, opt GuardOptions) error {
	low := strings.ToLower(strings.TrimSpace(sql))
	if low == "" {
		return reject("empty sql")
	}
	if strings.Contains(low, ";") {
		return reject("semicolon not allowed")
	}
	if strings.Contains(low, "--") || strings.Contains(low, "/*") {
		return reject("comments not allowed")
	}
	if !strings.HasPrefix(low, "select") && !strings.HasPrefix(low, "with") {
		return reject("only SELECT queries are allowed")
	}
	if m := blockedRe.FindString(low); m != "" {
		return reject("disallowed keyword: %s", m)
	}
	if err := requireAllowedTables(low, opt.Tables); err != nil {
		return err
	}
	if opt.DateColumn != "" {
		if err := requireBoundedDate(low, strings.ToLower(opt.DateColumn), opt.Today, opt.MaxDaysLookback); err != nil {
			return err
		}
	}
	return nil
}

func requireAllowedTables(low string, tables []string) error {
	allowed := map[string]bool{}
	for _, t := range tables {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, m := range cteRe.FindAllStringSubmatch(low, -1) {
		allowed[m[1]] = true
	}
	refs, err := tableRefs(literalRe.ReplaceAllString(fromFuncRe.ReplaceAllString(low, ""), "''"))
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return reject("query reads no table")
	}
	for _, ref := range refs {
		name := strings.ReplaceAll(ref, `"`, "")
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if !allowed[name] {
			return reject("table not allowed: %s", name)
		}
	}
	return nil
}

// tableRefs lists every table named in a FROM clause, including comma
// lists and joins. Subqueries are skipped here; their own FROM is visited
// separately.
func tableRefs(low string) ([]string, error) {
	var refs []string
	for _, loc := range fromKwRe.FindAllStringIndex(low, -1) {
		clause := flatten(low[loc[1]:])
		if m := clauseEndRe.FindStringIndex(clause); m != nil {
			clause = clause[:m[0]]
		}
		for _, item := range strings.Split(joinRe.ReplaceAllString(clause, ","), ",") {
			if m := condRe.FindStringIndex(item); m != nil {
				item = item[:m[0]]
			}
			fields := strings.Fields(item)
			if len(fields) == 0 || fields[0] == "()" {
				continue
			}
			if !tableRefRe.MatchString(fields[0]) {
				return nil, reject("unsupported table reference: %s", fields[0])
			}
			refs = append(refs, fields[0])
		}
	}
	return refs, nil
}

// flatten keeps the top level of s up to its first unbalanced ")".
// Nested groups collapse to "()" and string literals to "''".
func flatten(s string) string {
	var b strings.Builder
	depth := 0
	inQuote := false
	for _, r := range s {
		switch {
		case inQuote:
			if r == '\'' {
				inQuote = false
				if depth == 0 {
					b.WriteRune(r)
				}
			}
		case r == '\'':
			inQuote = true
			if depth == 0 {
				b.WriteRune(r)
			}
		case r == '(':
			if depth == 0 {
				b.WriteString("()")
			}
			depth++
		case r == ')':
			if depth == 0 {
				return b.String()
			}
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// levelView blanks every byte of low that is not at the top level of the
// paren group enclosing pos, and returns that group's bounds. Offsets are
// kept.
func levelView(low string, pos int) (view []byte, start, end int) {
	depth := make([]int, len(low))
	quoted := make([]bool, len(low))
	d, inQuote := 0, false
	for i := 0; i < len(low); i++ {
		c := low[i]
		switch {
		case inQuote:
			quoted[i] = true
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
			quoted[i] = true
		case c == ')':
			d--
		}
		depth[i] = d
		if !quoted[i] && c == '(' {
			d++
		}
	}

	level := depth[pos]
	start, end = 0, len(low)
	for i := pos - 1; i >= 0; i-- {
		if !quoted[i] && low[i] == '(' && depth[i] == level-1 {
			start = i + 1
			break
		}
	}
	for i := pos; i < len(low); i++ {
		if !quoted[i] && low[i] == ')' && depth[i] == level-1 {
			end = i
			break
		}
	}
	view = []byte(low)
	for i := range view {
		if i < start || i >= end || quoted[i] || depth[i] != level {
			view[i] = ' '
		}
	}
	return view, start, end
}

// orNearBound reports whether the predicate holding the bound at pos, or
// any predicate enclosing it, has an OR at its own level.
func orNearBound(low string, pos int) bool {
	for {
		view, start, _ := levelView(low, pos)
		v := string(view)
		from := 0
		for _, m := range predStartRe.FindAllStringIndex(v[:pos], -1) {
			from = m[1]
		}
		to := len(v)
		if m := clauseEndRe.FindStringIndex(v[pos:]); m != nil {
			to = pos + m[0]
		}
		if orRe.MatchString(v[from:to]) {
			return true
		}
		if start == 0 {
			return false
		}
		pos = start - 1
	}
}

// requireBoundedDate accepts `col >= [date] 'YYYY-MM-DD'`, `col > ...` and
// `col between [date] '...' and [date] '...'`.
func requireBoundedDate(low, col string, today time.Time, maxDays int) error {
	if maxDays <= 0 {
		maxDays = 90
	}
	if today.IsZero() {
		today = time.Now().UTC()
	}
	minAllowed := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -maxDays)

	c := regexp.QuoteMeta(col)
	between := regexp.MustCompile(`\b` + c + `\b\s+between\s+(?:date\s+)?'(\d{4}-\d{2}-\d{2})'\s+and\s+(?:date\s+)?'\d{4}-\d{2}-\d{2}'`)
	lower := regexp.MustCompile(`\b` + c + `\b\s*>=?\s*(?:date\s+)?'(\d{4}-\d{2}-\d{2})'`)

	m := between.FindStringSubmatchIndex(low)
	if m == nil {
		m = lower.FindStringSubmatchIndex(low)
	}
	if m == nil {
		if regexp.MustCompile(`\b` + c + `\b`).MatchString(low) {
			return reject("%s filter must include a lower bound", col)
		}
		return reject("missing required %s filter", col)
	}
	start := low[m[2]:m[3]]
	if orNearBound(low, m[0]) {
		return reject("%s bound cannot be combined with OR", col)
	}
	d, err := time.Parse(dateLayout, start)
	if err != nil {
		return reject("invalid %s bound %s", col, start)
	}
	if d.Before(minAllowed) {
		return reject("%s lookback too large: %s is older than %d days", col, start, maxDays)
	}
	return nil
}
