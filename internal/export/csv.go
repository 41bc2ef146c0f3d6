package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/sadopc/cragboard/internal/board"
)

// ToCSV writes visits to path as CSV, ordered by date and time.
func ToCSV(visits []board.VisitEvent, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	if err := w.Write([]string{"Date", "Time", "Name", "Gym", "Unsure", "Status", "Row"}); err != nil {
		return err
	}

	for _, v := range sorted(visits) {
		row := []string{
			v.Date,
			v.Time,
			v.Name,
			v.Gym,
			yesNo(v.Unsure),
			status(v),
			v.Row,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

// InRange keeps visits dated from..to inclusive. Empty bounds are open.
func InRange(visits []board.VisitEvent, from, to string) []board.VisitEvent {
	var out []board.VisitEvent
	for _, v := range visits {
		if from != "" && v.Date < from {
			continue
		}
		if to != "" && v.Date > to {
			continue
		}
		out = append(out, v)
	}
	return out
}

// sorted orders visits by date and time, keeping the board order for ties.
func sorted(visits []board.VisitEvent) []board.VisitEvent {
	out := append([]board.VisitEvent(nil), visits...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func status(v board.VisitEvent) string {
	if v.Pending {
		return "pending"
	}
	return "confirmed"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
