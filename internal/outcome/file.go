package outcome

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kiliankoe/timeauction/internal/game"
)

// FileSink appends a human-readable log of every round and final standings
// to a text file.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Close() error { return nil }

func (s *FileSink) Send(_ context.Context, ev Event) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	switch ev.Kind {
	case game.OutcomeRound:
		writeRound(&sb, ev)
	case game.OutcomeFinished:
		writeFinished(&sb, ev)
	default:
		return fmt.Errorf("unknown outcome kind %q", ev.Kind)
	}

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func writeRound(sb *strings.Builder, ev Event) {
	if ev.Round == 1 {
		sb.WriteString(fmt.Sprintf("\nTime Auction - Room %s (game %s)\n", ev.Code, ev.GameID))
		sb.WriteString(fmt.Sprintf("Started: %s\n", ev.At.Format(time.DateTime)))
		sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	}
	if ev.Record == nil {
		return
	}
	rec := ev.Record
	if rec.Winner != nil {
		sb.WriteString(fmt.Sprintf("Round %d: won by %s\n", rec.Round, *rec.Winner))
	} else {
		sb.WriteString(fmt.Sprintf("Round %d: draw\n", rec.Round))
	}
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	names := make([]string, 0, len(rec.Data))
	for name := range rec.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := rec.Data[name]
		used := "-"
		if entry.UsedTime != nil {
			used = entry.UsedTime.String() + "s"
		}
		sb.WriteString(fmt.Sprintf("- %s: used %s, remaining %ss\n", name, used, entry.RemainingTime))
	}
	sb.WriteString("\n")
}

func writeFinished(sb *strings.Builder, ev Event) {
	sb.WriteString("Final standings:\n")
	for _, st := range ev.Standings {
		sb.WriteString(fmt.Sprintf("%d. %s: %d win(s), %ss left\n", st.Rank, st.Nickname, st.Wins, st.RemainingTime))
	}
	sb.WriteString(fmt.Sprintf("Game ended at %s\n", ev.At.Format(time.DateTime)))
	sb.WriteString(strings.Repeat("=", 50) + "\n")
}
