package dot

import (
	"regexp"
	"strings"
)

var bareID = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var nodeIDEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
)

// EscapeNodeID returns id unchanged when it is a plain DOT identifier and a
// quoted string otherwise.
func EscapeNodeID(id string) string {
	if bareID.MatchString(id) {
		return id
	}
	return `"` + nodeIDEscaper.Replace(id) + `"`
}

// UnquoteNodeID reverses EscapeNodeID. Renderers report node titles without
// quoting, which is the form used as identity map key.
func UnquoteNodeID(id string) string {
	if len(id) < 2 {
		return id
	}
	first, last := id[0], id[len(id)-1]
	switch {
	case first == '"' && last == '"':
		return unescapeQuoted(id[1 : len(id)-1])
	case first == '\'' && last == '\'':
		return id[1 : len(id)-1]
	}
	return id
}

// unescapeQuoted decodes the escapes written by EscapeNodeID. Unknown
// escapes are kept as written.
func unescapeQuoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '\\', '"':
			b.WriteByte(s[i])
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

var labelEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", "",
)

// EscapeLabel makes s safe inside a double-quoted DOT string. Newlines
// become the two-character \n escape and carriage returns are dropped.
func EscapeLabel(s string) string {
	return labelEscaper.Replace(s)
}

func quote(s string) string {
	return `"` + EscapeLabel(s) + `"`
}
