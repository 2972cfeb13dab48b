package lexical

import "strings"

// FallbackScore is assigned to every substring-fallback match.
const FallbackScore = 0.5

// LikePattern returns a LIKE/ILIKE pattern matching query anywhere, with the
// wildcard characters in query escaped by backslash.
func LikePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
