package records

import (
	"regexp"
	"sort"
	"strings"
)

var teamSeparator = regexp.MustCompile(`[\\/]`)

// technicianAliases maps misspellings seen in the field to the canonical name.
var technicianAliases = map[string]string{
	"Talison":    "Thalisson",
	"Thaisson":   "Thalisson",
	"Gean":       "Jean",
	"Wellington": "Weliton",
}

// NormalizeTechnician trims a name and resolves known aliases (case-sensitive).
func NormalizeTechnician(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := technicianAliases[trimmed]; ok {
		return canonical
	}
	return trimmed
}

// SplitTeam breaks a team string such as "Thalisson\Gabriel/Davi" into normalized names.
func SplitTeam(team string) []string {
	parts := teamSeparator.Split(team, -1)
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := NormalizeTechnician(part)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Technicians returns the sorted, de-duplicated technician names across all records.
func Technicians(collection []MaintenanceRecord) []string {
	seen := make(map[string]struct{})
	for _, record := range collection {
		for _, name := range SplitTeam(record.Team) {
			seen[name] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Clients returns the sorted, de-duplicated client names across both collections.
func Clients(document Document) []string {
	seen := make(map[string]struct{})
	for _, record := range document.MaintenanceRecords {
		if client := strings.TrimSpace(record.Client); client != "" {
			seen[client] = struct{}{}
		}
	}
	for _, record := range document.ComponentReplacements {
		if client := strings.TrimSpace(record.Client); client != "" {
			seen[client] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Filter narrows both collections. Zero values mean "all".
type Filter struct {
	Client string
	Status Status
	Month  int
	Year   int
}

func (f Filter) matchesDate(date Date) bool {
	if f.Year != 0 && date.Year() != f.Year {
		return false
	}
	if f.Month != 0 && int(date.Month()) != f.Month {
		return false
	}
	return true
}

// Maintenance returns the maintenance records accepted by the filter.
func (f Filter) Maintenance(collection []MaintenanceRecord) []MaintenanceRecord {
	filtered := make([]MaintenanceRecord, 0, len(collection))
	for _, record := range collection {
		if f.Client != "" && record.Client != f.Client {
			continue
		}
		if f.Status != "" && record.Status != f.Status {
			continue
		}
		if !f.matchesDate(record.Date) {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

// Components returns the replacement records accepted by the filter. Status does not apply.
func (f Filter) Components(collection []ComponentReplacementRecord) []ComponentReplacementRecord {
	filtered := make([]ComponentReplacementRecord, 0, len(collection))
	for _, record := range collection {
		if f.Client != "" && record.Client != f.Client {
			continue
		}
		if !f.matchesDate(record.Date) {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

// Summary holds the dashboard headline figures.
type Summary struct {
	PendingTasks       int `json:"pending_tasks"`
	ClientsServed      int `json:"clients_served"`
	TotalRecords       int `json:"total_records"`
	ReplacedComponents int `json:"replaced_components"`
}

// Summarize computes headline figures for already-filtered collections.
func Summarize(maintenance []MaintenanceRecord, components []ComponentReplacementRecord) Summary {
	clients := make(map[string]struct{})
	pending := 0
	for _, record := range maintenance {
		if record.Status == StatusPending {
			pending++
		}
		clients[record.Client] = struct{}{}
	}
	return Summary{
		PendingTasks:       pending,
		ClientsServed:      len(clients),
		TotalRecords:       len(maintenance),
		ReplacedComponents: len(components),
	}
}
