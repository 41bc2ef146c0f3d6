package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/cragboard/internal/board"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Visits     []jsonVisit `json:"visits"`
}

type jsonVisit struct {
	Date   string `json:"date"`
	Time   string `json:"time,omitempty"`
	Name   string `json:"name"`
	Gym    string `json:"gym,omitempty"`
	Unsure bool   `json:"unsure"`
	Status string `json:"status"`
	Row    string `json:"row,omitempty"`
}

// ToJSON writes visits to path as an indented JSON document with an export
// timestamp and a count.
func ToJSON(visits []board.VisitEvent, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().In(board.Zone).Format(time.RFC3339),
		Count:      len(visits),
		Visits:     []jsonVisit{},
	}

	for _, v := range sorted(visits) {
		export.Visits = append(export.Visits, jsonVisit{
			Date:   v.Date,
			Time:   v.Time,
			Name:   v.Name,
			Gym:    v.Gym,
			Unsure: v.Unsure,
			Status: status(v),
			Row:    v.Row,
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
