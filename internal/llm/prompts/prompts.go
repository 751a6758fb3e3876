// Package prompts renders the model instructions from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/studyhall/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

var funcs = template.FuncMap{
	"join":   strings.Join,
	"inc":    func(i int) int { return i + 1 },
	"letter": func(i int) string { return string(rune('A' + i)) },
}

func load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.New("prompts").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", fmt.Errorf("load prompt templates: %w", err)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// GenerateData parameterizes question generation.
type GenerateData struct {
	Topic      string
	Difficulty model.Difficulty
	Count      int
	Types      []string
	Grounded   bool
}

// SyllabusData parameterizes syllabus generation.
type SyllabusData struct {
	Topic    string
	Grounded bool
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Type        model.QuestionType
	Prompt      string
	Code        string
	Options     []string
	Answer      string
	Explanation string
	Submission  string
	HasImage    bool
}

// PlanData parameterizes study plans.
type PlanData struct {
	Topic    string
	Outline  string
	WeakTags []string
}

func GenerateSystem() (string, error) { return render("generate_system.tmpl", nil) }

func GenerateInstructions(d GenerateData) (string, error) {
	return render("generate_questions.tmpl", d)
}

// Examples renders questions as style examples for generation.
func Examples(qs []model.Question) (string, error) {
	return render("examples.tmpl", qs)
}

// SyllabusContext renders course outlines as generation context.
func SyllabusContext(ss []model.Syllabus) (string, error) {
	return render("syllabus_context.tmpl", ss)
}

func SyllabusSystem() (string, error) { return render("syllabus_system.tmpl", nil) }

func SyllabusInstructions(d SyllabusData) (string, error) {
	return render("syllabus_instructions.tmpl", d)
}

func AnalyzeSystem() (string, error)       { return render("analyze_system.tmpl", nil) }
func AnalyzeInstructions() (string, error) { return render("analyze_instructions.tmpl", nil) }

func GradeSystem() (string, error) { return render("grade_system.tmpl", nil) }

// Grade builds the grading request. The submission is sanitized here.
func Grade(d GradeData) (string, error) {
	if !d.HasImage {
		d.Submission = SanitizeAnswer(d.Submission)
	}
	return render("grade.tmpl", d)
}

func StudyPlan(d PlanData) (string, error) { return render("study_plan.tmpl", d) }

// SanitizeAnswer strips tags that could break out of the answer block,
// substitutes a marker for empty answers and truncates very long ones.
func SanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
