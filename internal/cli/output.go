package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// emit prints v as indented JSON when --json is set, otherwise calls text.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
