package profile

// Options lists the suggested values for the enumerated profile fields.
// Values outside these lists are accepted.
type Options struct {
	Roles               []string `json:"roles"`
	CommunicationStyles []string `json:"communication_styles"`
	HelpAreas           []string `json:"help_areas"`
	WorkHours           []string `json:"work_hours"`
}

// DefaultOptions returns the built-in option lists.
func DefaultOptions() Options {
	return Options{
		Roles: []string{
			"Student", "Working Professional", "Parent", "Freelancer", "Retired", "Other",
		},
		CommunicationStyles: []string{
			"Casual and friendly", "Professional", "Direct and brief", "Detailed explanations",
		},
		HelpAreas: []string{
			"Work tasks", "Family planning", "Entertainment suggestions",
			"Learning new things", "Health and fitness", "Financial planning",
		},
		WorkHours: []string{
			"Morning person", "Night owl", "Standard 9-5", "Flexible schedule",
		},
	}
}
