package tutor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/model"
)

// fakeClient replays scripted responses and records every request.
type fakeClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", nil
}

func (f *fakeClient) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeKnowledge struct {
	questions  []model.Question
	syllabuses []model.Syllabus
	err        error
	queries    []string
}

func (k *fakeKnowledge) FindRelevantQuestions(_ context.Context, q string) ([]model.Question, error) {
	k.queries = append(k.queries, q)
	return k.questions, k.err
}

func (k *fakeKnowledge) FindRelevantSyllabuses(_ context.Context, q string) ([]model.Syllabus, error) {
	return k.syllabuses, k.err
}

func newTestGenerator(client llm.Client, kb Knowledge) *Generator {
	g := NewGenerator(client, kb)
	n := 0
	g.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	g.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func allText(req llm.Request) string {
	var sb strings.Builder
	for _, p := range req.Parts {
		if p.Kind == model.PartText {
			sb.WriteString(p.Value)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

const twoQuestions = `{"questions":[
	{"id":"model-1","type":"single_choice","prompt":"Which organelle makes ATP?","options":["Nucleus","Mitochondria"],"answer":"Mitochondria","explanation":"Powerhouse","tags":["biology"]},
	{"id":"model-2","type":"essay","prompt":"Describe osmosis","answer":"Water moves across a membrane","explanation":"","tags":["biology"]}
]}`

func TestGenerateQuestions(t *testing.T) {
	client := &fakeClient{responses: []string{"```json\n" + twoQuestions + "\n```"}}
	g := newTestGenerator(client, &fakeKnowledge{})

	qs, err := g.GenerateQuestions(context.Background(), QuizRequest{Topic: "cells", Difficulty: model.DifficultyEasy, Count: 2})
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	for i, q := range qs {
		if q.ID != fmt.Sprintf("id-%d", i+1) {
			t.Errorf("question %d id = %q, want a fresh id", i, q.ID)
		}
		if q.Source != model.ProvenanceGenerated {
			t.Errorf("source = %q", q.Source)
		}
	}
	if g.Phase() != PhaseDone {
		t.Errorf("phase = %s", g.Phase())
	}
	if _, failed := g.LastFailure(); failed {
		t.Error("unexpected failure recorded")
	}

	req := client.last()
	if req.Variant != llm.VariantText || !req.JSON || req.System == "" {
		t.Errorf("request = %+v", req)
	}
	if strings.Contains(allText(req), "ONLY the material") {
		t.Error("no context was supplied, so no grounding constraint expected")
	}
}

func TestGenerateQuestionsInvalidJSON(t *testing.T) {
	for _, raw := range []string{"I am unable to comply.", `{"questions": "none"}`, ""} {
		client := &fakeClient{responses: []string{raw}}
		g := newTestGenerator(client, &fakeKnowledge{})

		qs, err := g.GenerateQuestions(context.Background(), QuizRequest{Topic: "x"})
		if err != nil {
			t.Fatalf("%q: err = %v, want nil", raw, err)
		}
		if qs == nil || len(qs) != 0 {
			t.Errorf("%q: got %v, want empty non-nil list", raw, qs)
		}
		f, ok := g.LastFailure()
		if !ok || f.Phase != PhaseParsing {
			t.Errorf("%q: failure = %+v, %v", raw, f, ok)
		}
		if g.Phase() != PhaseFailed {
			t.Errorf("%q: phase = %s", raw, g.Phase())
		}
	}
}

func TestGenerateQuestionsDropsBrokenChoice(t *testing.T) {
	client := &fakeClient{responses: []string{`{"questions":[
		{"type":"single_choice","prompt":"Pick","options":["a","b"],"answer":"c"},
		{"type":"single_choice","prompt":"Pick by letter","options":["a","b"],"answer":"B"},
		{"type":"multi_choice","prompt":"No options","answer":["a"]}
	]}`}}
	g := newTestGenerator(client, &fakeKnowledge{})

	qs, err := g.GenerateQuestions(context.Background(), QuizRequest{Topic: "x", Count: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 1 || qs[0].Prompt != "Pick by letter" {
		t.Errorf("got %+v", qs)
	}
}

func TestGenerateQuestionsContext(t *testing.T) {
	kb := &fakeKnowledge{
		syllabuses: []model.Syllabus{{CourseName: "Cell Biology", Modules: []model.Module{{Title: "Organelles", KeyPoints: []string{"Ribosomes"}}}}},
	}
	for i := 0; i < 8; i++ {
		kb.questions = append(kb.questions, model.Question{
			ID: fmt.Sprintf("ex-%d", i), Type: model.TypeEssay, Prompt: fmt.Sprintf("Example prompt %d", i), Answer: model.TextAnswer("r"),
		})
	}
	client := &fakeClient{responses: []string{twoQuestions}}
	g := newTestGenerator(client, kb)

	material := []model.ContentPart{model.TextPart("--- notes.txt ---\nMitochondria produce ATP."), model.ImagePart("image/png", "AAAA")}
	qs, err := g.GenerateQuestions(context.Background(), QuizRequest{Topic: "cells", Count: 2, Material: material, Sources: []string{"notes.txt", "slide.png"}})
	if err != nil {
		t.Fatal(err)
	}
	if qs[0].Source != "notes.txt, slide.png" {
		t.Errorf("source = %q", qs[0].Source)
	}
	if len(kb.queries) != 1 || kb.queries[0] != "cells" {
		t.Errorf("retrieval queries = %v", kb.queries)
	}

	req := client.last()
	if req.Variant != llm.VariantVision {
		t.Error("image in context must select the vision variant")
	}
	if req.Parts[0].Value != material[0].Value || req.Parts[1].Kind != model.PartImage {
		t.Error("uploaded material must come first")
	}
	text := allText(req)
	if !strings.Contains(text, "Example prompt 4") || strings.Contains(text, "Example prompt 5") {
		t.Error("examples must be capped at five")
	}
	if !strings.Contains(text, "Organelles") || !strings.Contains(text, "Ribosomes") {
		t.Error("syllabus modules and key points missing from context")
	}
	if !strings.Contains(text, "ONLY the material") {
		t.Error("grounding constraint missing")
	}
	examples := strings.Index(text, "EXAMPLE QUESTIONS")
	outlines := strings.Index(text, "COURSE OUTLINES")
	instructions := strings.Index(text, "Write 2 new questions")
	if !(examples < outlines && outlines < instructions) {
		t.Errorf("context order wrong: examples=%d outlines=%d instructions=%d", examples, outlines, instructions)
	}
}

func TestGenerateQuestionsErrorsPropagate(t *testing.T) {
	client := &fakeClient{errs: []error{llm.ErrMissingCredential}}
	g := newTestGenerator(client, &fakeKnowledge{})
	if _, err := g.GenerateQuestions(context.Background(), QuizRequest{Topic: "x"}); !errors.Is(err, llm.ErrMissingCredential) {
		t.Errorf("err = %v", err)
	}
	if f, ok := g.LastFailure(); !ok || f.Phase != PhaseAwaitingModel || f.Kind != "model" {
		t.Errorf("failure = %+v", f)
	}

	boom := errors.New("database is locked")
	g = newTestGenerator(&fakeClient{}, &fakeKnowledge{err: boom})
	if _, err := g.GenerateQuestions(context.Background(), QuizRequest{Topic: "x"}); !errors.Is(err, boom) {
		t.Errorf("storage err = %v", err)
	}
}

func TestRetryAfterFailureClearsLastFailure(t *testing.T) {
	client := &fakeClient{responses: []string{"not json", twoQuestions}}
	g := newTestGenerator(client, &fakeKnowledge{})
	req := QuizRequest{Topic: "cells", Count: 2}

	first, _ := g.GenerateQuestions(context.Background(), req)
	if len(first) != 0 {
		t.Fatalf("first attempt = %v", first)
	}
	f, ok := g.LastFailure()
	if !ok || f.Kind != "parse_error" {
		t.Fatalf("failure = %+v", f)
	}

	second, err := g.GenerateQuestions(context.Background(), req)
	if err != nil || len(second) != 2 {
		t.Fatalf("retry = %v, %v", second, err)
	}
	if _, ok := g.LastFailure(); ok {
		t.Error("successful retry must clear the failure")
	}
}

func TestGenerateSyllabus(t *testing.T) {
	client := &fakeClient{responses: []string{`{"courseName":"Biology","description":"Intro","modules":[{"title":"Cells","keyPoints":["Membranes"]}]}`}}
	g := newTestGenerator(client, &fakeKnowledge{})

	s, err := g.GenerateSyllabus(context.Background(), SyllabusRequest{Topic: "biology"})
	if err != nil || s == nil {
		t.Fatalf("GenerateSyllabus = %v, %v", s, err)
	}
	if s.ID != "id-1" || !s.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("syllabus = %+v", s)
	}

	client.responses = append(client.responses, `{"modules":[]}`)
	s, err = g.GenerateSyllabus(context.Background(), SyllabusRequest{Topic: "biology"})
	if err != nil || s != nil {
		t.Errorf("invalid syllabus = %v, %v; want nil, nil", s, err)
	}
}

func TestAnalyzeFiles(t *testing.T) {
	client := &fakeClient{responses: []string{`{"syllabus":{"courseName":"Chem 1","modules":[{"title":"Atoms","keyPoints":[]}]},"questions":[{"type":"fill_blank","prompt":"H2O is ___","answer":"water"}]}`}}
	g := newTestGenerator(client, &fakeKnowledge{})

	out, err := g.AnalyzeFiles(context.Background(), []model.ContentPart{model.TextPart("syllabus text")}, []string{"chem.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Syllabus == nil || out.Syllabus.CourseName != "Chem 1" {
		t.Errorf("syllabus = %+v", out.Syllabus)
	}
	if len(out.Questions) != 1 || out.Questions[0].Source != "chem.pdf" {
		t.Errorf("questions = %+v", out.Questions)
	}

	empty, err := g.AnalyzeFiles(context.Background(), nil, nil)
	if err != nil || !empty.Empty() {
		t.Errorf("no material = %+v, %v", empty, err)
	}
	if len(client.requests) != 1 {
		t.Error("no model call expected without material")
	}

	client.responses = append(client.responses, "garbage")
	bad, err := g.AnalyzeFiles(context.Background(), []model.ContentPart{model.TextPart("x")}, nil)
	if err != nil || !bad.Empty() {
		t.Errorf("garbage = %+v, %v", bad, err)
	}
}

func TestAnalyzeFilesKeepsValidParts(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantSyllabus bool
		wantPrompts  []string
	}{
		{
			name:        "broken syllabus keeps questions",
			raw:         `{"syllabus":{"courseName":"Chem 1","modules":[{"keyPoints":["atoms"]}]},"questions":[{"type":"fill_blank","prompt":"H2O is ___","answer":"water"}]}`,
			wantPrompts: []string{"H2O is ___"},
		},
		{
			name:         "unknown question type keeps syllabus",
			raw:          `{"syllabus":{"courseName":"Chem 1","modules":[{"title":"Atoms","keyPoints":[]}]},"questions":[{"type":"matching","prompt":"Match ions","answer":"x"},{"type":"essay","prompt":"Explain bonds","answer":"rubric"}]}`,
			wantSyllabus: true,
			wantPrompts:  []string{"Explain bonds"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(&fakeClient{responses: []string{tt.raw}}, &fakeKnowledge{})
			out, err := g.AnalyzeFiles(context.Background(), []model.ContentPart{model.TextPart("chem notes")}, []string{"chem.pdf"})
			if err != nil {
				t.Fatalf("AnalyzeFiles: %v", err)
			}
			if (out.Syllabus != nil) != tt.wantSyllabus {
				t.Errorf("syllabus = %+v", out.Syllabus)
			}
			var prompts []string
			for _, q := range out.Questions {
				prompts = append(prompts, q.Prompt)
			}
			if !slices.Equal(prompts, tt.wantPrompts) {
				t.Errorf("questions = %v, want %v", prompts, tt.wantPrompts)
			}
			if g.Phase() != PhaseDone {
				t.Errorf("phase = %v, want done", g.Phase())
			}
			f, ok := g.LastFailure()
			if !ok || f.Kind != "schema_error" || f.Phase != PhaseParsing {
				t.Errorf("last failure = %+v, %v", f, ok)
			}
		})
	}
}

func TestGrade(t *testing.T) {
	q := model.Question{ID: "q1", Type: model.TypeEssay, Prompt: "Explain osmosis", Answer: model.TextAnswer("water, membrane")}

	tests := []struct {
		name string
		raw  string
		want model.Verdict
	}{
		{"valid", `{"score":80,"isCorrect":true,"feedback":"Good"}`, model.Verdict{Score: 80, IsCorrect: true, Feedback: "Good"}},
		{"clamped high", `{"score":140,"isCorrect":true,"feedback":"Great"}`, model.Verdict{Score: 100, IsCorrect: true, Feedback: "Great"}},
		{"clamped low", `{"score":-5,"isCorrect":false,"feedback":"No"}`, model.Verdict{Score: 0, Feedback: "No"}},
		{"missing feedback", `{"score":90,"isCorrect":true}`, FallbackVerdict()},
		{"malformed", `Score: 9/10`, FallbackVerdict()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrader(&fakeClient{responses: []string{tt.raw}})
			v, err := g.Grade(context.Background(), q, model.Submission{Text: "Water crosses a membrane"})
			if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if v != tt.want {
				t.Errorf("verdict = %+v, want %+v", v, tt.want)
			}
		})
	}

	if FallbackVerdict().Feedback == "" {
		t.Error("fallback feedback must not be empty")
	}
}

func TestGradeRequests(t *testing.T) {
	ok := `{"score":50,"isCorrect":false,"feedback":"Half"}`

	text := &fakeClient{responses: []string{ok}}
	_, err := NewGrader(text).Grade(context.Background(),
		model.Question{Type: model.TypeMultiChoice, Prompt: "Primes", Options: []string{"2", "4", "5"}, Answer: model.ListAnswer("2", "5")},
		model.Submission{List: []string{"2", "4"}})
	if err != nil {
		t.Fatal(err)
	}
	req := text.last()
	if req.Variant != llm.VariantText || !strings.Contains(allText(req), "2; 4") {
		t.Errorf("text grading request = %+v", req)
	}

	img := &fakeClient{responses: []string{ok}}
	_, err = NewGrader(img).Grade(context.Background(),
		model.Question{Type: model.TypeDiagram, Prompt: "Draw a cell", Answer: model.TextAnswer("nucleus")},
		model.Submission{Image: &model.ImageBlob{MediaType: "image/png", Data: []byte{1, 2, 3}}})
	if err != nil {
		t.Fatal(err)
	}
	req = img.last()
	if req.Variant != llm.VariantVision || len(req.Parts) != 2 || req.Parts[1].Value != "AQID" {
		t.Errorf("diagram grading request = %+v", req)
	}

	failing := &fakeClient{errs: []error{&llm.StatusError{Status: 500, Body: "boom"}}}
	if _, err := NewGrader(failing).Grade(context.Background(), model.Question{Type: model.TypeEssay, Prompt: "p"}, model.Submission{Text: "a"}); err == nil {
		t.Error("transport failure must propagate")
	}
}

func TestStudyPlan(t *testing.T) {
	client := &fakeClient{responses: []string{"\n## Week 1\nReview cells\n"}}
	plan, err := NewPlanner(client).StudyPlan(context.Background(), "Biology",
		[]model.Syllabus{{CourseName: "Bio", Modules: []model.Module{{Title: "Cells"}}}}, []string{"osmosis"})
	if err != nil {
		t.Fatal(err)
	}
	if plan != "## Week 1\nReview cells" {
		t.Errorf("plan = %q", plan)
	}
	text := allText(client.last())
	if !strings.Contains(text, "osmosis") || !strings.Contains(text, "Cells") {
		t.Errorf("plan prompt = %s", text)
	}
}
