package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Veraticus/leakscan/internal/model"
)

// Document is the JSON shape written for a run.
type Document struct {
	Result  *model.Result    `json:"result"`
	Summary ExecutiveSummary `json:"executive_summary"`
}

// WriteJSON writes the result and its executive summary as indented JSON.
// Decimal values are encoded as strings so no precision is lost.
func WriteJSON(w io.Writer, r *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Document{Result: r, Summary: Summarize(r)}); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
