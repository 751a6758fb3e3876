package tutor

import (
	"context"
	"strings"

	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/llm/prompts"
	"github.com/pavelanni/studyhall/internal/model"
)

// Planner writes free-form study plans.
type Planner struct {
	client llm.Client
}

func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client}
}

// StudyPlan returns a Markdown plan for topic, shaped by the given course
// outlines and the tags the learner recently got wrong.
func (p *Planner) StudyPlan(ctx context.Context, topic string, syllabuses []model.Syllabus, weakTags []string) (string, error) {
	var outline string
	if len(syllabuses) > 0 {
		var err error
		if outline, err = prompts.SyllabusContext(syllabuses); err != nil {
			return "", err
		}
	}
	text, err := prompts.StudyPlan(prompts.PlanData{Topic: topic, Outline: outline, WeakTags: weakTags})
	if err != nil {
		return "", err
	}
	out, err := p.client.Complete(ctx, llm.Request{
		Parts:       []model.ContentPart{model.TextPart(text)},
		Variant:     llm.VariantText,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
