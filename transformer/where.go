package transformer

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lexiphanic/restdriver/compiler"
)

var (
	andKeyword = regexp.MustCompile(`(?:^|\s+)(?:AND|and)(?:\s+|$)`)
	orKeyword  = regexp.MustCompile(`(?:^|\s+)(?:OR|or)(?:\s+|$)`)

	// aliasPatterns holds the compiled prefix pattern of recent aliases.
	aliasPatterns = mustAliasCache(256)
)

func mustAliasCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(err)
	}
	return c
}

// CompileWhere renders node as a REST filter. Placeholders are bound to params
// in document order and the parameters that were not consumed are returned.
// The "<alias>." prefix is removed from field references.
func CompileWhere(node compiler.WhereNode, alias string, params []any) (string, []any, error) {
	fragment, err := concatWhere(node)
	if err != nil {
		return "", params, err
	}
	return bindParams(fragment, alias, params)
}

func concatWhere(node compiler.WhereNode) (string, error) {
	switch n := node.(type) {
	case *compiler.Expression:
		ret := strings.Builder{}
		for _, child := range n.Children {
			s, err := concatWhere(child)
			if err != nil {
				return "", err
			}
			ret.WriteString(s)
			ret.WriteString(n.Join.Separator())
		}
		return ret.String(), nil
	case *compiler.Leaf:
		ret := andKeyword.ReplaceAllString(n.Text, "&")
		ret = orKeyword.ReplaceAllString(ret, "|")
		if len(n.Children) == 0 {
			return ret, nil
		}
		group := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			s, err := concatWhere(child)
			if err != nil {
				return "", err
			}
			group = append(group, s)
		}
		return ret + "(" + strings.Join(group, ",") + ")", nil
	}
	return "", fmt.Errorf("%w: unexpected node %T", ErrMalformedWhereClause, node)
}

func bindParams(fragment, alias string, params []any) (string, []any, error) {
	count := strings.Count(fragment, "?")
	if count > len(params) {
		return "", params, fmt.Errorf(
			"%w: %d placeholders but %d parameters",
			ErrMalformedWhereClause,
			count,
			len(params),
		)
	}
	fragment = stripAlias(fragment, alias)
	ret := strings.Builder{}
	next := 0
	for _, r := range fragment {
		if r != '?' {
			ret.WriteRune(r)
			continue
		}
		ret.WriteString(url.QueryEscape(formatParam(params[next])))
		next++
	}
	return ret.String(), params[count:], nil
}

// stripAlias removes "alias." where it starts a field reference.
func stripAlias(s, alias string) string {
	if alias == "" {
		return s
	}
	re, ok := aliasPatterns.Get(alias)
	if !ok {
		re = regexp.MustCompile(`(^|[^\w.])` + regexp.QuoteMeta(alias) + `\.`)
		aliasPatterns.Add(alias, re)
	}
	return re.ReplaceAllString(s, "${1}")
}

// formatParam renders a bound parameter as text before it is escaped.
func formatParam(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	case bool:
		return strconv.FormatBool(p)
	case time.Time:
		return p.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return p.String()
	}
	return fmt.Sprint(v)
}
