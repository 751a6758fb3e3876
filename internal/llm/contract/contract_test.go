package contract

import (
	"slices"
	"testing"

	"github.com/pavelanni/studyhall/internal/model"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n[1,2]\n```", `[1,2]`},
		{"unclosed fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"prose around", "Here you go:\n{\"a\":{\"b\":2}}\nHope this helps!", `{"a":{"b":2}}`},
		{"array with prose", "Sure! [{\"x\":1}] done", `[{"x":1}]`},
		{"no json", "I cannot help with that.", "I cannot help with that."},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.input); got != tt.want {
				t.Errorf("StripFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		kind  Kind
		count int
	}{
		{"object", `{"questions":[{"type":"essay","prompt":"Explain osmosis","answer":"Mentions water and membrane"}]}`, OK, 1},
		{"bare array", `[{"type":"fill_blank","prompt":"2+2=___","answer":4}]`, OK, 1},
		{"fenced", "```json\n{\"questions\":[]}\n```", OK, 0},
		{"aliases and nulls", `{"questions":[{"type":"Multiple-Choice","prompt":"Pick","options":["a","b"],"answer":["a"],"tags":null,"difficulty":"hard"}]}`, OK, 1},
		{"not json", "Sorry, I can't do that", ParseError, 0},
		{"empty", "", ParseError, 0},
		{"truncated", `{"questions":[{"type":"essay"`, ParseError, 0},
		{"unknown type", `{"questions":[{"type":"riddle","prompt":"p","answer":"a"}]}`, SchemaError, 0},
		{"missing prompt", `{"questions":[{"type":"essay","answer":"a"}]}`, SchemaError, 0},
		{"wrong shape", `{"items":[]}`, SchemaError, 0},
		{"options not strings", `{"questions":[{"type":"single_choice","prompt":"p","options":[{"text":"a"}],"answer":"a"}]}`, SchemaError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseQuestions(tt.raw)
			if r.Kind != tt.kind {
				t.Fatalf("kind = %v (%v), want %v", r.Kind, r.Err, tt.kind)
			}
			if r.OK() != (tt.kind == OK) {
				t.Error("OK() disagrees with Kind")
			}
			if len(r.Value) != tt.count {
				t.Errorf("got %d questions, want %d", len(r.Value), tt.count)
			}
			if tt.kind != OK && r.Err == nil {
				t.Error("failure without error detail")
			}
		})
	}
}

func TestParseQuestionsNormalizes(t *testing.T) {
	r := ParseQuestions(`{"questions":[
		{"type":"Multiple-Choice","prompt":"Pick primes","options":["2","4","5"],"answer":[2,5],"tags":null,"difficulty":"hard"},
		{"type":"fill_blank","prompt":"2+2=___","answer":4}
	]}`)
	if !r.OK() {
		t.Fatalf("ParseQuestions: %v %v", r.Kind, r.Err)
	}
	q := r.Value[0]
	if q.Type != model.TypeMultiChoice {
		t.Errorf("type = %q", q.Type)
	}
	if q.Difficulty != model.DifficultyHard {
		t.Errorf("difficulty = %q", q.Difficulty)
	}
	if !q.Answer.IsList() || len(q.Answer.List) != 2 || q.Answer.List[1] != "5" {
		t.Errorf("answer = %+v", q.Answer)
	}
	if got := r.Value[1].Answer; got.IsList() || got.Text != "4" {
		t.Errorf("numeric answer = %+v", got)
	}
}

func TestParseSyllabus(t *testing.T) {
	r := ParseSyllabus("```json\n" + `{"id":"model-id","courseName":"Biology","description":"Intro","modules":[{"title":"Cells","keyPoints":null}]}` + "\n```")
	if !r.OK() {
		t.Fatalf("ParseSyllabus: %v %v", r.Kind, r.Err)
	}
	s := r.Value
	if s.ID != "" {
		t.Errorf("model supplied id leaked through: %q", s.ID)
	}
	if s.CourseName != "Biology" || len(s.Modules) != 1 || s.Modules[0].KeyPoints == nil {
		t.Errorf("syllabus = %+v", s)
	}

	if r := ParseSyllabus(`{"courseName":"","modules":[]}`); r.Kind != SchemaError {
		t.Errorf("empty course name kind = %v", r.Kind)
	}
	if r := ParseSyllabus(`[]`); r.Kind != SchemaError {
		t.Errorf("array kind = %v", r.Kind)
	}
	if r := ParseSyllabus(`nope`); r.Kind != ParseError {
		t.Errorf("prose kind = %v", r.Kind)
	}
}

func TestParseAnalysis(t *testing.T) {
	const essay = `{"type":"essay","prompt":"p","answer":"a"}`
	tests := []struct {
		name        string
		raw         string
		kind        Kind
		hasSyllabus bool
		questions   int
		rejected    []string
	}{
		{"both", `{"syllabus":{"courseName":"Chem","modules":[]},"questions":[` + essay + `]}`, OK, true, 1, nil},
		{"questions only", `{"syllabus":null,"questions":[` + essay + `]}`, OK, false, 1, nil},
		{"bare array", `[` + essay + `]`, OK, false, 1, nil},
		{"blank syllabus", `{"syllabus":{"courseName":"","modules":[]},"questions":null}`, OK, false, 0, nil},
		{"nothing", `{}`, OK, false, 0, nil},
		{"bad question", `{"questions":[{"prompt":"p"}]}`, SchemaError, false, 0, []string{"questions[0]"}},
		{
			"broken syllabus keeps questions",
			`{"syllabus":{"courseName":"Chem","modules":[{"keyPoints":[]}]},"questions":[{"type":"fill_blank","prompt":"H2O is ___","answer":"water"}]}`,
			OK, false, 1, []string{"syllabus"},
		},
		{
			"unknown question type keeps syllabus and other questions",
			`{"syllabus":{"courseName":"Chem","modules":[{"title":"Atoms","keyPoints":[]}]},"questions":[{"type":"matching","prompt":"p","answer":"a"},` + essay + `]}`,
			OK, true, 1, []string{"questions[0]"},
		},
		{"syllabus of the wrong shape", `{"syllabus":"Chem","questions":[` + essay + `]}`, OK, false, 1, []string{"syllabus"}},
		{"questions of the wrong shape", `{"syllabus":{"courseName":"Chem","modules":[]},"questions":"none"}`, OK, true, 0, []string{"questions"}},
		{"not an object", `"hello"`, SchemaError, false, 0, nil},
		{"garbage", `no json here`, ParseError, false, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseAnalysis(tt.raw)
			if r.Kind != tt.kind {
				t.Fatalf("kind = %v (%v), want %v", r.Kind, r.Err, tt.kind)
			}
			if (r.Value.Syllabus != nil) != tt.hasSyllabus {
				t.Errorf("syllabus = %+v", r.Value.Syllabus)
			}
			if len(r.Value.Questions) != tt.questions {
				t.Errorf("questions = %d, want %d", len(r.Value.Questions), tt.questions)
			}
			var parts []string
			for _, rej := range r.Value.Rejected {
				if rej.Err == nil || rej.Kind != SchemaError {
					t.Errorf("rejection %+v", rej)
				}
				parts = append(parts, rej.Part)
			}
			if !slices.Equal(parts, tt.rejected) {
				t.Errorf("rejected parts = %v, want %v", parts, tt.rejected)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
		want model.Verdict
	}{
		{"valid", `{"score":85,"isCorrect":true,"feedback":"Good"}`, OK, model.Verdict{Score: 85, IsCorrect: true, Feedback: "Good"}},
		{"fenced", "```json\n{\"score\":0,\"isCorrect\":false,\"feedback\":\"No\"}\n```", OK, model.Verdict{Feedback: "No"}},
		{"missing feedback", `{"score":50,"isCorrect":false}`, SchemaError, model.Verdict{}},
		{"empty feedback", `{"score":50,"isCorrect":false,"feedback":""}`, SchemaError, model.Verdict{}},
		{"score as string", `{"score":"50","isCorrect":false,"feedback":"x"}`, SchemaError, model.Verdict{}},
		{"garbage", `Score: 5/10`, ParseError, model.Verdict{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseVerdict(tt.raw)
			if r.Kind != tt.kind {
				t.Fatalf("kind = %v (%v), want %v", r.Kind, r.Err, tt.kind)
			}
			if r.Value != tt.want {
				t.Errorf("verdict = %+v, want %+v", r.Value, tt.want)
			}
		})
	}
}
