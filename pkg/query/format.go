package query

import (
	"fmt"
	"strings"
	"time"
)

// inlineArgs substitutes placeholders with formatted values for debug
// output.
func inlineArgs(text string, args []any) string {
	var sb strings.Builder
	sb.Grow(len(text))
	next := 0
	for _, r := range text {
		if r == '?' && next < len(args) {
			sb.WriteString(formatArg(args[next]))
			next++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func formatArg(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(x), "'", "''") + "'"
	case time.Time:
		return "'" + x.Format(time.RFC3339) + "'"
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}
