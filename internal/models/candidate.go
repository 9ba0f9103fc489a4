package models

import "strings"

// Education is the single education entry entered in section 4.
type Education struct {
	Institution string
	Degree      string
	StartYear   string
	EndYear     string
	Grade       string
	Module      string
}

// Project is the single experience entry entered in section 5.
type Project struct {
	Title      string
	Role       string
	Period     string
	Tools      []string
	ActionVerb string
	Did        string
	ToolsText  string
	Outcome    string
}

// Language is an additional language entry entered in section 7.
type Language struct {
	Name  string
	Level string
}

// Candidate is the fixed applicant the smoke scenario enters into the portal.
type Candidate struct {
	FullName       string
	Email          string
	Specialisation string
	University     string
	Country        string
	LinkedIn       string
	Summary        string

	Education Education
	Project   Project

	// SkillChips are preset technical skill buttons, CustomSkill is typed in.
	SkillChips  []string
	CustomSkill string

	Language Language

	SoftSkillChips  []string
	CustomSoftSkill string
}

// DefaultCandidate returns the scenario data.
func DefaultCandidate() Candidate {
	return Candidate{
		FullName:       "Alex Carter",
		Email:          "alex.carter@example.com",
		Specialisation: "Geomatics",
		University:     "UPV",
		Country:        "Spain",
		LinkedIn:       "https://www.linkedin.com/in/alex-carter",
		Summary:        "Motivated geomatics graduate focused on spatial analysis, field data workflows, and mission-ready reporting for interdisciplinary teams.",
		Education: Education{
			Institution: "Polytechnic University of Valencia",
			Degree:      "BSc Geomatics Engineering",
			StartYear:   "2022",
			EndYear:     "2026",
			Grade:       "8.7/10",
			Module:      "Remote Sensing",
		},
		Project: Project{
			Title:      "Campus GNSS Control Network",
			Role:       "Lead Surveyor",
			Period:     "2025",
			Tools:      []string{"QGIS", "GNSS receivers"},
			ActionVerb: "Conducted",
			Did:        "Conducted topographic control point calibration",
			ToolsText:  "GNSS receivers and QGIS",
			Outcome:    "improved positional consistency by 18%",
		},
		SkillChips:      []string{"QGIS", "Python"},
		CustomSkill:     "PostgreSQL/PostGIS",
		Language:        Language{Name: "Spanish", Level: "Native"},
		SoftSkillChips:  []string{"Team leadership", "Project management"},
		CustomSoftSkill: "Public speaking",
	}
}

// ExportFilePrefix is the filename prefix the portal gives the exported application.
func (c Candidate) ExportFilePrefix() string {
	return "MARS1_Application_" + strings.Join(strings.Fields(c.FullName), "_")
}
