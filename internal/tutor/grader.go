package tutor

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/llm/contract"
	"github.com/pavelanni/studyhall/internal/llm/prompts"
	"github.com/pavelanni/studyhall/internal/model"
)

// FallbackFeedback is the feedback of the verdict returned when the model's
// grading response cannot be used.
const FallbackFeedback = "Automatic grading failed; please review this answer manually."

// FallbackVerdict is returned whenever grading output is unusable.
func FallbackVerdict() model.Verdict {
	return model.Verdict{Score: 0, IsCorrect: false, Feedback: FallbackFeedback}
}

// Grader asks the model to grade one answer.
type Grader struct {
	client llm.Client
}

func NewGrader(client llm.Client) *Grader {
	return &Grader{client: client}
}

// Grade returns the verdict for a submission. A response that violates the
// contract yields FallbackVerdict and no error. Missing credentials and
// transport failures are returned as errors.
func (g *Grader) Grade(ctx context.Context, q model.Question, sub model.Submission) (model.Verdict, error) {
	withImage := q.Type == model.TypeDiagram && sub.Image != nil && len(sub.Image.Data) > 0

	data := prompts.GradeData{
		Type:        q.Type,
		Prompt:      q.Prompt,
		Code:        q.Code,
		Options:     q.Options,
		Answer:      q.Answer.String(),
		Explanation: q.Explanation,
		HasImage:    withImage,
	}
	if !withImage {
		data.Submission = sub.AsText()
	}
	text, err := prompts.Grade(data)
	if err != nil {
		return model.Verdict{}, err
	}
	system, err := prompts.GradeSystem()
	if err != nil {
		return model.Verdict{}, err
	}

	parts := []model.ContentPart{model.TextPart(text)}
	if withImage {
		parts = append(parts, model.ImagePart(sub.Image.MediaType, base64.StdEncoding.EncodeToString(sub.Image.Data)))
	}

	raw, err := g.client.Complete(ctx, llm.Request{
		System:  system,
		Parts:   parts,
		Variant: llm.VariantFor(parts),
		JSON:    true,
	})
	if err != nil {
		return model.Verdict{}, err
	}

	res := contract.ParseVerdict(raw)
	if !res.OK() {
		slog.Warn("grading response rejected", "question", q.ID, "kind", res.Kind, "error", res.Err, "raw", raw)
		return FallbackVerdict(), nil
	}
	v := res.Value
	v.Score = min(max(v.Score, 0), 100)
	return v, nil
}
