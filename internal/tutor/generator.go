// Package tutor orchestrates model calls: generating questions and
// syllabuses, extracting knowledge from uploads, grading and study plans.
package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/llm/contract"
	"github.com/pavelanni/studyhall/internal/llm/prompts"
	"github.com/pavelanni/studyhall/internal/model"
)

const (
	DefaultMaxExamples   = 5
	DefaultMaxSyllabuses = 5
	DefaultQuestionCount = 5
)

// Phase is the state of the most recent generation run.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseBuildingContext Phase = "building_context"
	PhaseAwaitingModel   Phase = "awaiting_model"
	PhaseParsing         Phase = "parsing"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// Failure describes why the most recent run ended in PhaseFailed.
type Failure struct {
	Phase   Phase     `json:"phase"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Knowledge is the retrieval side of the knowledge base.
type Knowledge interface {
	FindRelevantQuestions(ctx context.Context, query string) ([]model.Question, error)
	FindRelevantSyllabuses(ctx context.Context, query string) ([]model.Syllabus, error)
}

// Generator builds grounded generation requests and turns the model output
// into validated entities.
type Generator struct {
	client llm.Client
	kb     Knowledge

	MaxExamples   int
	MaxSyllabuses int

	newID func() string
	now   func() time.Time

	mu          sync.Mutex
	phase       Phase
	lastFailure *Failure
}

func NewGenerator(client llm.Client, kb Knowledge) *Generator {
	return &Generator{
		client:        client,
		kb:            kb,
		MaxExamples:   DefaultMaxExamples,
		MaxSyllabuses: DefaultMaxSyllabuses,
		newID:         uuid.NewString,
		now:           time.Now,
		phase:         PhaseIdle,
	}
}

// QuizRequest describes a question generation run. Material holds the
// normalized uploads and Sources their file names.
type QuizRequest struct {
	Topic      string
	Difficulty model.Difficulty
	Count      int
	Types      []model.QuestionType
	Material   []model.ContentPart
	Sources    []string
}

// SyllabusRequest describes a syllabus generation run.
type SyllabusRequest struct {
	Topic    string
	Material []model.ContentPart
	Sources  []string
}

// Extraction is what AnalyzeFiles found in the uploaded material.
type Extraction struct {
	Syllabus  *model.Syllabus  `json:"syllabus,omitempty"`
	Questions []model.Question `json:"questions"`
}

// Empty reports whether nothing was extracted.
func (e Extraction) Empty() bool { return e.Syllabus == nil && len(e.Questions) == 0 }

// Phase returns the phase of the most recent run.
func (g *Generator) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// LastFailure returns the failure of the most recent run, or the last part
// it had to drop.
func (g *Generator) LastFailure() (Failure, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastFailure == nil {
		return Failure{}, false
	}
	return *g.lastFailure, true
}

func (g *Generator) enter(p Phase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = p
	if p == PhaseBuildingContext {
		g.lastFailure = nil
	}
}

// reject records a discarded part of a run that otherwise succeeds.
func (g *Generator) reject(kind string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastFailure = &Failure{Phase: g.phase, Kind: kind, Message: err.Error(), At: g.now()}
}

func (g *Generator) fail(kind string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastFailure = &Failure{Phase: g.phase, Kind: kind, Message: err.Error(), At: g.now()}
	g.phase = PhaseFailed
}

// GenerateQuestions runs one generation. A response that violates the
// contract yields an empty list and no error; missing credentials, transport
// and storage failures are returned as errors.
func (g *Generator) GenerateQuestions(ctx context.Context, req QuizRequest) ([]model.Question, error) {
	g.enter(PhaseBuildingContext)
	if req.Count <= 0 {
		req.Count = DefaultQuestionCount
	}

	parts, err := g.buildContext(ctx, req.Topic, req.Material, true)
	if err != nil {
		g.fail("storage", err)
		return nil, err
	}
	instructions, err := prompts.GenerateInstructions(prompts.GenerateData{
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		Types:      typeNames(req.Types),
		Grounded:   len(parts) > 0,
	})
	if err != nil {
		g.fail("prompt", err)
		return nil, err
	}
	system, err := prompts.GenerateSystem()
	if err != nil {
		g.fail("prompt", err)
		return nil, err
	}
	parts = append(parts, model.TextPart(instructions))

	raw, err := g.call(ctx, system, parts)
	if err != nil {
		return nil, err
	}

	g.enter(PhaseParsing)
	res := contract.ParseQuestions(raw)
	if !res.OK() {
		g.contractViolation("questions", res.Kind, res.Err, raw)
		return []model.Question{}, nil
	}

	questions := g.finishQuestions(res.Value, provenance(req.Sources))
	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}
	g.enter(PhaseDone)
	slog.Info("questions generated", "topic", req.Topic, "count", len(questions))
	return questions, nil
}

// GenerateSyllabus runs one syllabus generation. A contract violation yields
// nil and no error.
func (g *Generator) GenerateSyllabus(ctx context.Context, req SyllabusRequest) (*model.Syllabus, error) {
	g.enter(PhaseBuildingContext)
	parts, err := g.buildContext(ctx, req.Topic, req.Material, false)
	if err != nil {
		g.fail("storage", err)
		return nil, err
	}
	instructions, err := prompts.SyllabusInstructions(prompts.SyllabusData{Topic: req.Topic, Grounded: len(parts) > 0})
	if err != nil {
		g.fail("prompt", err)
		return nil, err
	}
	system, err := prompts.SyllabusSystem()
	if err != nil {
		g.fail("prompt", err)
		return nil, err
	}
	parts = append(parts, model.TextPart(instructions))

	raw, err := g.call(ctx, system, parts)
	if err != nil {
		return nil, err
	}

	g.enter(PhaseParsing)
	res := contract.ParseSyllabus(raw)
	if !res.OK() {
		g.contractViolation("syllabus", res.Kind, res.Err, raw)
		return nil, nil
	}
	s := g.finishSyllabus(res.Value)
	g.enter(PhaseDone)
	slog.Info("syllabus generated", "course", s.CourseName, "modules", len(s.Modules))
	return &s, nil
}

// AnalyzeFiles extracts a syllabus and questions from uploaded material.
// Only the uploads themselves are sent; nothing is retrieved.
func (g *Generator) AnalyzeFiles(ctx context.Context, material []model.ContentPart, sources []string) (Extraction, error) {
	g.enter(PhaseBuildingContext)
	if len(material) == 0 {
		g.enter(PhaseDone)
		return Extraction{Questions: []model.Question{}}, nil
	}
	system, err := prompts.AnalyzeSystem()
	if err != nil {
		g.fail("prompt", err)
		return Extraction{}, err
	}
	instructions, err := prompts.AnalyzeInstructions()
	if err != nil {
		g.fail("prompt", err)
		return Extraction{}, err
	}
	parts := append(append([]model.ContentPart{}, material...), model.TextPart(instructions))

	raw, err := g.call(ctx, system, parts)
	if err != nil {
		return Extraction{}, err
	}

	g.enter(PhaseParsing)
	res := contract.ParseAnalysis(raw)
	if !res.OK() {
		g.contractViolation("analysis", res.Kind, res.Err, raw)
		return Extraction{Questions: []model.Question{}}, nil
	}
	for _, r := range res.Value.Rejected {
		slog.Warn("dropping part of the analysis", "kind", r.Kind, "error", r.Err)
		g.reject(r.Kind.String(), r.Err)
	}
	out := Extraction{Questions: g.finishQuestions(res.Value.Questions, provenance(sources))}
	if res.Value.Syllabus != nil {
		if s := g.finishSyllabus(*res.Value.Syllabus); s.Validate() == nil {
			out.Syllabus = &s
		}
	}
	g.enter(PhaseDone)
	slog.Info("files analyzed", "sources", len(sources), "questions", len(out.Questions), "syllabus", out.Syllabus != nil)
	return out, nil
}

// buildContext assembles uploads, example questions and syllabus outlines in
// that order. Examples are only included for question generation.
func (g *Generator) buildContext(ctx context.Context, topic string, material []model.ContentPart, withExamples bool) ([]model.ContentPart, error) {
	parts := append([]model.ContentPart{}, material...)

	if withExamples {
		examples, err := g.kb.FindRelevantQuestions(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("retrieve example questions: %w", err)
		}
		examples = truncate(examples, g.MaxExamples)
		if len(examples) > 0 {
			text, err := prompts.Examples(examples)
			if err != nil {
				return nil, err
			}
			parts = append(parts, model.TextPart(text))
		}
	}

	syllabuses, err := g.kb.FindRelevantSyllabuses(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("retrieve syllabuses: %w", err)
	}
	syllabuses = truncate(syllabuses, g.MaxSyllabuses)
	if len(syllabuses) > 0 {
		text, err := prompts.SyllabusContext(syllabuses)
		if err != nil {
			return nil, err
		}
		parts = append(parts, model.TextPart(text))
	}
	return parts, nil
}

func (g *Generator) call(ctx context.Context, system string, parts []model.ContentPart) (string, error) {
	g.enter(PhaseAwaitingModel)
	variant := llm.VariantFor(parts)
	slog.Debug("calling model", "variant", variant, "parts", len(parts))
	raw, err := g.client.Complete(ctx, llm.Request{System: system, Parts: parts, Variant: variant, JSON: true})
	if err != nil {
		g.fail("model", err)
		return "", err
	}
	return raw, nil
}

func (g *Generator) contractViolation(what string, kind contract.Kind, err error, raw string) {
	slog.Warn("model response rejected", "expected", what, "kind", kind, "error", err, "raw", raw)
	g.fail(kind.String(), err)
}

// finishQuestions assigns fresh ids and provenance and drops questions that
// break the model invariants, such as a choice answer outside its options.
func (g *Generator) finishQuestions(qs []model.Question, source string) []model.Question {
	out := make([]model.Question, 0, len(qs))
	for _, q := range qs {
		q.ID = g.newID()
		q.Source = source
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if q.Tags == nil {
			q.Tags = []string{}
		}
		if err := q.Validate(); err != nil {
			slog.Warn("dropping generated question", "error", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

func (g *Generator) finishSyllabus(s model.Syllabus) model.Syllabus {
	s.ID = g.newID()
	s.CreatedAt = g.now().UTC()
	s.Normalize()
	return s
}

func provenance(sources []string) string {
	if len(sources) == 0 {
		return model.ProvenanceGenerated
	}
	return strings.Join(sources, ", ")
}

func typeNames(ts []model.QuestionType) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

func truncate[T any](items []T, n int) []T {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}
