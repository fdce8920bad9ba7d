package email

// Template is a string-based enum naming email templates.
type Template string

const (
	// TemplateSessionChanged corresponds to templates/session_changed.html
	TemplateSessionChanged Template = "session_changed"
)

// Valid reports whether t names an embedded template.
func (t Template) Valid() bool {
	return templates.Lookup(t.file()) != nil
}

// PreviewData contains sample data for local template previews and tests.
var PreviewData = map[Template]map[string]any{
	TemplateSessionChanged: {
		"RecipientName":   "Ana",
		"SubjectCode":     "MAT-101",
		"SubjectName":     "Calculus I",
		"SeasonTitle":     "Season 4",
		"SessionDay":      "monday",
		"SessionTime":     "18:30",
		"SessionLocation": "Room 204",
	},
}
