// This file implements the `termrelay sessions` command, which lists
// the tmux sessions the daemon would expose, with their stable IDs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	apperrors "github.com/termrelay/host/internal/errors"
	"github.com/termrelay/host/internal/tmux"
)

// SessionListItem is one row in `termrelay sessions --json` output.
type SessionListItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Windows   int    `json:"windows"`
	Attached  bool   `json:"attached"`
	CreatedAt int64  `json:"created_at"`
}

func runSessions(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	directory := tmux.NewDirectory()
	if err := directory.Refresh(); err != nil {
		if apperrors.IsCode(err, apperrors.CodeTmuxNotInstalled) {
			fmt.Fprintln(stderr, "Error: tmux is not installed")
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	sessions := directory.List()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name < sessions[j].Name
	})

	items := make([]SessionListItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, SessionListItem{
			ID:        s.ID,
			Name:      s.Name,
			Windows:   s.Windows,
			Attached:  s.Attached,
			CreatedAt: s.CreatedAt.Unix(),
		})
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if len(items) == 0 {
		fmt.Fprintln(stdout, "No tmux sessions found.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWINDOWS\tATTACHED\tCREATED")
	for _, item := range items {
		attached := "no"
		if item.Attached {
			attached = "yes"
		}
		created := time.Unix(item.CreatedAt, 0).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", item.ID, item.Name, item.Windows, attached, created)
	}
	w.Flush()
	return 0
}
