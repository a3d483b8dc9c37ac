package repository

import (
	"strconv"
	"strings"

	"github.com/hitoshi/scanscore/internal/database"
)

// rebind は ? プレースホルダを方言に合わせて書き換える。
// PostgreSQLでは $1, $2, ... に置き換える。
func rebind(dialect database.Dialect, query string) string {
	if dialect != database.DialectPostgres {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
