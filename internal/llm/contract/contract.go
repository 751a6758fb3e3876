// Package contract turns untrusted model output into typed values. Every
// parse yields a tagged Result instead of an error, so callers decide how to
// degrade.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pavelanni/studyhall/internal/model"
)

// Kind tags the outcome of a parse.
type Kind int

const (
	OK Kind = iota
	ParseError
	SchemaError
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case ParseError:
		return "parse_error"
	case SchemaError:
		return "schema_error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is either a value (Kind OK) or the reason the response was rejected.
type Result[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

func (r Result[T]) OK() bool { return r.Kind == OK }

func parseFailure[T any](err error) Result[T]  { return Result[T]{Kind: ParseError, Err: err} }
func schemaFailure[T any](err error) Result[T] { return Result[T]{Kind: SchemaError, Err: err} }

// StripFences removes a markdown code fence around a JSON payload and any
// prose before or after it.
func StripFences(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		if nl := strings.Index(content[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(content[start:], "```"); end != -1 {
			content = content[start : start+end]
		} else {
			content = content[start:]
		}
	}
	content = strings.TrimSpace(content)

	open := strings.IndexAny(content, "{[")
	if open == -1 {
		return content
	}
	closer := "}"
	if content[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(content, closer); end > open {
		content = content[open : end+1]
	}
	return strings.TrimSpace(content)
}

// decodeDoc strips fences and parses JSON into a generic document.
func decodeDoc(raw string) (any, error) {
	text := StripFences(raw)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return doc, nil
}

// validated checks doc against schema and decodes its canonical re-encoding
// into T.
func validated[T any](doc any, schema *jsonschema.Schema) Result[T] {
	if err := schema.Validate(doc); err != nil {
		return schemaFailure[T](err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return schemaFailure[T](err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return schemaFailure[T](err)
	}
	return Result[T]{Kind: OK, Value: v}
}

func parse[T any](raw string, schema *jsonschema.Schema, fix func(any) any) Result[T] {
	doc, err := decodeDoc(raw)
	if err != nil {
		return parseFailure[T](err)
	}
	if fix != nil {
		doc = fix(doc)
	}
	return validated[T](doc, schema)
}

type questionList struct {
	Questions []model.Question `json:"questions"`
}

// ParseQuestions accepts {"questions": [...]} or a bare array of questions.
// Ids in the output are whatever the model sent; callers replace them.
func ParseQuestions(raw string) Result[[]model.Question] {
	r := parse[questionList](raw, questionsSchema, func(doc any) any {
		if arr, ok := doc.([]any); ok {
			doc = map[string]any{"questions": arr}
		}
		if m, ok := doc.(map[string]any); ok {
			if qs, present := m["questions"]; present {
				m["questions"] = fixQuestions(qs)
			}
		}
		return doc
	})
	return Result[[]model.Question]{Kind: r.Kind, Value: r.Value.Questions, Err: r.Err}
}

// ParseSyllabus accepts a single syllabus object.
func ParseSyllabus(raw string) Result[model.Syllabus] {
	return parse[model.Syllabus](raw, syllabusSchema, func(doc any) any {
		if m, ok := doc.(map[string]any); ok {
			fixSyllabus(m)
		}
		return doc
	})
}

// Rejection is one part of a mixed extraction that failed validation.
type Rejection struct {
	Part string
	Kind Kind
	Err  error
}

// Analysis is the mixed extraction of uploaded documents. The syllabus and
// every question are validated on their own; Rejected lists the parts that
// were dropped.
type Analysis struct {
	Syllabus  *model.Syllabus
	Questions []model.Question
	Rejected  []Rejection
}

func (a *Analysis) reject(part string, kind Kind, err error) {
	a.Rejected = append(a.Rejected, Rejection{Part: part, Kind: kind, Err: fmt.Errorf("%s: %w", part, err)})
}

// ParseAnalysis accepts {"syllabus": {...}|null, "questions": [...]} or a
// bare question array. The result is OK when at least one part survived or
// nothing was rejected; it is a SchemaError only when every part present was
// rejected.
func ParseAnalysis(raw string) Result[Analysis] {
	doc, err := decodeDoc(raw)
	if err != nil {
		return parseFailure[Analysis](err)
	}
	if arr, ok := doc.([]any); ok {
		doc = map[string]any{"questions": arr}
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return schemaFailure[Analysis](fmt.Errorf("expected an object, got %T", doc))
	}

	out := Analysis{Questions: []model.Question{}}
	switch s := m["syllabus"].(type) {
	case nil:
	case map[string]any:
		if isBlankSyllabus(s) {
			break
		}
		fixSyllabus(s)
		if r := validated[model.Syllabus](s, syllabusSchema); r.OK() {
			out.Syllabus = &r.Value
		} else {
			out.reject("syllabus", r.Kind, r.Err)
		}
	default:
		out.reject("syllabus", SchemaError, fmt.Errorf("expected an object, got %T", s))
	}

	switch qs := fixQuestions(m["questions"]).(type) {
	case []any:
		for i, item := range qs {
			r := validated[model.Question](item, questionSchema)
			if !r.OK() {
				out.reject(fmt.Sprintf("questions[%d]", i), r.Kind, r.Err)
				continue
			}
			out.Questions = append(out.Questions, r.Value)
		}
	default:
		out.reject("questions", SchemaError, fmt.Errorf("expected an array, got %T", qs))
	}

	if out.Syllabus == nil && len(out.Questions) == 0 && len(out.Rejected) > 0 {
		errs := make([]error, 0, len(out.Rejected))
		for _, r := range out.Rejected {
			errs = append(errs, r.Err)
		}
		return Result[Analysis]{Kind: SchemaError, Value: out, Err: errors.Join(errs...)}
	}
	return Result[Analysis]{Kind: OK, Value: out}
}

// ParseVerdict accepts {"score": n, "isCorrect": b, "feedback": "..."}.
func ParseVerdict(raw string) Result[model.Verdict] {
	return parse[model.Verdict](raw, verdictSchema, nil)
}

var typeAliases = map[string]model.QuestionType{
	"multiple_choice":   model.TypeMultiChoice,
	"multiple_select":   model.TypeMultiChoice,
	"multi_select":      model.TypeMultiChoice,
	"mcq":               model.TypeSingleChoice,
	"single":            model.TypeSingleChoice,
	"choice":            model.TypeSingleChoice,
	"true_false":        model.TypeSingleChoice,
	"fill_in_blank":     model.TypeFillBlank,
	"fill_in_the_blank": model.TypeFillBlank,
	"short_answer":      model.TypeFillBlank,
	"coding":            model.TypeCode,
	"open":              model.TypeEssay,
	"open_ended":        model.TypeEssay,
	"drawing":           model.TypeDiagram,
}

// fixQuestions repairs harmless deviations: spelled-out type names, null
// lists and scalar answers given as numbers.
func fixQuestions(v any) any {
	if v == nil {
		return []any{}
	}
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	for _, item := range arr {
		q, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := q["type"].(string); ok {
			key := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(t)))
			if alias, ok := typeAliases[key]; ok {
				key = string(alias)
			}
			q["type"] = key
		}
		for _, k := range []string{"options", "tags", "hint", "code", "difficulty", "explanation"} {
			if val, present := q[k]; present && val == nil {
				delete(q, k)
			}
		}
		if list, ok := q["answer"].([]any); ok {
			for i, a := range list {
				if _, isString := a.(string); !isString && a != nil {
					list[i] = fmt.Sprint(a)
				}
			}
		}
		if d, ok := q["difficulty"].(string); ok {
			q["difficulty"] = normalizeDifficulty(d)
		}
	}
	return arr
}

func normalizeDifficulty(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "easy":
		return string(model.DifficultyEasy)
	case "medium":
		return string(model.DifficultyMedium)
	case "hard":
		return string(model.DifficultyHard)
	}
	return ""
}

func fixSyllabus(s map[string]any) {
	if s["modules"] == nil {
		s["modules"] = []any{}
	}
	for _, k := range []string{"description", "term"} {
		if val, present := s[k]; present && val == nil {
			delete(s, k)
		}
	}
	// Ids and timestamps are assigned locally.
	delete(s, "id")
	delete(s, "createdAt")
	mods, ok := s["modules"].([]any)
	if !ok {
		return
	}
	for _, item := range mods {
		if m, ok := item.(map[string]any); ok && m["keyPoints"] == nil {
			m["keyPoints"] = []any{}
		}
	}
}

func isBlankSyllabus(s map[string]any) bool {
	name, _ := s["courseName"].(string)
	mods, _ := s["modules"].([]any)
	return strings.TrimSpace(name) == "" && len(mods) == 0
}
