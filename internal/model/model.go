package model

import "time"

// QuestionType represents the kind of question and how it is answered.
type QuestionType string

const (
	TypeSingleChoice QuestionType = "single_choice"
	TypeMultiChoice  QuestionType = "multi_choice"
	TypeFillBlank    QuestionType = "fill_blank"
	TypeCode         QuestionType = "code"
	TypeEssay        QuestionType = "essay"
	TypeDiagram      QuestionType = "diagram"
)

var validTypes = map[QuestionType]bool{
	TypeSingleChoice: true,
	TypeMultiChoice:  true,
	TypeFillBlank:    true,
	TypeCode:         true,
	TypeEssay:        true,
	TypeDiagram:      true,
}

// IsValid reports whether t is a known question type.
func (t QuestionType) IsValid() bool {
	return validTypes[t]
}

// IsChoice reports whether the question is answered by picking from options.
func (t QuestionType) IsChoice() bool {
	return t == TypeSingleChoice || t == TypeMultiChoice
}

// Difficulty represents question difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// IsValid reports whether d is empty (unset) or one of the known tiers.
func (d Difficulty) IsValid() bool {
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ProvenanceGenerated marks entities produced by topic-only generation.
const ProvenanceGenerated = "generated"

// Question is a single item of the question bank.
type Question struct {
	ID          string       `json:"id" yaml:"id"`
	Type        QuestionType `json:"type" yaml:"type"`
	Prompt      string       `json:"prompt" yaml:"prompt"`
	Options     []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Answer      Answer       `json:"answer" yaml:"answer"`
	Explanation string       `json:"explanation" yaml:"explanation"`
	Tags        []string     `json:"tags" yaml:"tags"`
	Hint        string       `json:"hint,omitempty" yaml:"hint,omitempty"`
	Code        string       `json:"code,omitempty" yaml:"code,omitempty"`
	Difficulty  Difficulty   `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Source      string       `json:"source,omitempty" yaml:"source,omitempty"`
}

// Module is one section of a syllabus.
type Module struct {
	Title     string   `json:"title" yaml:"title"`
	KeyPoints []string `json:"keyPoints" yaml:"keyPoints"`
}

// Syllabus is a course outline.
type Syllabus struct {
	ID          string    `json:"id" yaml:"id"`
	CourseName  string    `json:"courseName" yaml:"courseName"`
	Description string    `json:"description" yaml:"description"`
	Term        string    `json:"term,omitempty" yaml:"term,omitempty"`
	Modules     []Module  `json:"modules" yaml:"modules"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
}

// Normalize replaces nil slices with empty ones so that modules and key points
// are never serialized as null.
func (s *Syllabus) Normalize() {
	if s.Modules == nil {
		s.Modules = []Module{}
	}
	for i := range s.Modules {
		if s.Modules[i].KeyPoints == nil {
			s.Modules[i].KeyPoints = []string{}
		}
	}
}

// UserAnswer is the learner's response to one question within a session.
type UserAnswer struct {
	QuestionID string   `json:"questionId"`
	Response   Response `json:"response"`
	IsCorrect  *bool    `json:"isCorrect,omitempty"`
	Feedback   string   `json:"feedback,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// QuizSession is one attempt at a fixed list of questions.
type QuizSession struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Questions  []Question            `json:"questions"`
	Answers    map[string]UserAnswer `json:"answers"`
	Completed  bool                  `json:"completed"`
	Score      float64               `json:"score"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// HasQuestion reports whether the session contains a question with the given id.
func (s *QuizSession) HasQuestion(id string) bool {
	_, ok := s.Question(id)
	return ok
}

// Question returns the session question with the given id.
func (s *QuizSession) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Verdict is the outcome of grading one answer.
type Verdict struct {
	Score     float64 `json:"score"`
	IsCorrect bool    `json:"isCorrect"`
	Feedback  string  `json:"feedback"`
}
