package assessment

// DefaultRole is used when neither the analysis nor the candidate named a role.
const DefaultRole = "Software Engineer"

// Defaults are the fixed parameters of generated assessments.
type Defaults struct {
	Level              string
	Company            string
	AptitudeCount      int
	AptitudeDifficulty string
	AptitudeTopics     []string
	TopicWeights       []int
	ScenarioTestType   string
	JobDescription     string
	CodingLanguage     string
	InterviewType      string
	PreferredLanguage  string
	InterviewMode      string
	Industry           string
	CompanyTemplate    string
	CustomInstructions string
	UserID             string
}

// DefaultDefaults returns the standard assessment parameters.
func DefaultDefaults() Defaults {
	return Defaults{
		Level:              "intermediate",
		Company:            "Tech Company",
		AptitudeCount:      10,
		AptitudeDifficulty: "medium",
		AptitudeTopics:     []string{"Arithmetic", "Logical Reasoning", "Problem Solving"},
		TopicWeights:       []int{3, 3, 4},
		ScenarioTestType:   "behavioral",
		JobDescription:     "Software development role",
		CodingLanguage:     "python",
		InterviewType:      "behavioral",
		PreferredLanguage:  "English",
		InterviewMode:      "assessment",
		Industry:           "technology",
		CompanyTemplate:    "google",
		CustomInstructions: "Focus on technical skills and problem-solving abilities. " +
			"Assess communication skills, problem-solving approach, and technical knowledge.",
		UserID: "current_user",
	}
}

// withFallbacks fills zero fields from DefaultDefaults.
func (d Defaults) withFallbacks() Defaults {
	def := DefaultDefaults()
	fill := func(v *string, fallback string) {
		if *v == "" {
			*v = fallback
		}
	}
	fill(&d.Level, def.Level)
	fill(&d.Company, def.Company)
	fill(&d.AptitudeDifficulty, def.AptitudeDifficulty)
	fill(&d.ScenarioTestType, def.ScenarioTestType)
	fill(&d.JobDescription, def.JobDescription)
	fill(&d.CodingLanguage, def.CodingLanguage)
	fill(&d.InterviewType, def.InterviewType)
	fill(&d.PreferredLanguage, def.PreferredLanguage)
	fill(&d.InterviewMode, def.InterviewMode)
	fill(&d.Industry, def.Industry)
	fill(&d.CompanyTemplate, def.CompanyTemplate)
	fill(&d.CustomInstructions, def.CustomInstructions)
	fill(&d.UserID, def.UserID)
	if d.AptitudeCount <= 0 {
		d.AptitudeCount = def.AptitudeCount
	}
	if len(d.AptitudeTopics) == 0 {
		d.AptitudeTopics = def.AptitudeTopics
		d.TopicWeights = def.TopicWeights
	}
	return d
}
