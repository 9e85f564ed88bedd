package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Shortlist is the shortlist table joined with job titles.
type Shortlist struct {
	Items []*Invitation `json:"items"`
}

func (s *Shortlist) Len() int {
	return len(s.Items)
}

// Pending returns the entries that have not been notified.
func (s *Shortlist) Pending() []*Invitation {
	var pending []*Invitation
	for _, item := range s.Items {
		if !item.EmailSent {
			pending = append(pending, item)
		}
	}
	return pending
}

// ReportByJob groups shortlisted candidates by job, best score first.
func (s *Shortlist) ReportByJob() map[string][]map[string]string {
	grouped := make(map[string][]*Invitation)
	for _, item := range s.Items {
		key := fmt.Sprintf("%s (%d)", item.JobTitle, item.JobID)
		grouped[key] = append(grouped[key], item)
	}

	report := make(map[string][]map[string]string, len(grouped))
	for key, items := range grouped {
		sort.SliceStable(items, func(i, j int) bool { return items[i].MatchScore > items[j].MatchScore })
		for _, item := range items {
			report[key] = append(report[key], map[string]string{
				"name":       item.Name,
				"email":      item.Email,
				"score":      fmt.Sprintf("%.2f", item.MatchScore),
				"email sent": fmt.Sprintf("%t", item.EmailSent),
			})
		}
	}
	return report
}

// DumpToTmpFile writes the shortlist as indented JSON to a new temporary file
// and returns its name.
func (s *Shortlist) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "shortlist_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return file.Name(), nil
}
