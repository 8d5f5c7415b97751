package namelist

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Render writes the namelist in Fortran syntax.
func (n *Namelist) Render(w io.Writer) error {
	var b strings.Builder
	for i, g := range n.groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "&%s\n", g.name)
		for _, k := range g.keys {
			fmt.Fprintf(&b, "    %s = %s\n", k, formatValue(g.values[k]))
		}
		b.WriteString("/\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFile renders the namelist to path.
func (n *Namelist) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create namelist file: %w", err)
	}
	if err := n.Render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write namelist file: %w", err)
	}
	return f.Close()
}

func formatValue(v any) string {
	list, ok := v.([]any)
	if !ok {
		return formatScalar(v)
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = formatScalar(item)
	}
	return strings.Join(parts, ", ")
}

func formatScalar(v any) string {
	switch s := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case bool:
		if s {
			return ".true."
		}
		return ".false."
	case int:
		return strconv.Itoa(s)
	case float64:
		out := strconv.FormatFloat(s, 'g', -1, 64)
		if !strings.ContainsAny(out, ".eEnN") {
			out += ".0"
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}
