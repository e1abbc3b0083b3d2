package cmd

import (
	"encoding/json"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func formatPort(port int) string {
	if port == 0 {
		return "-"
	}
	return strconv.Itoa(port)
}
