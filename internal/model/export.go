package model

// Backup is the top-level structure of a knowledge base backup file.
type Backup struct {
	Syllabuses   []Syllabus `json:"syllabuses" yaml:"syllabuses"`
	QuestionBank []Question `json:"questionBank" yaml:"questionBank"`
}

// MergeReport summarizes an import into the knowledge base.
type MergeReport struct {
	QuestionsAdded    int  `json:"questionsAdded"`
	QuestionsSkipped  int  `json:"questionsSkipped"`
	SyllabusesAdded   int  `json:"syllabusesAdded"`
	SyllabusesSkipped int  `json:"syllabusesSkipped"`
	AlreadyImported   bool `json:"alreadyImported,omitempty"`
}
