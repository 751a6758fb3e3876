// Package scoring aggregates per-answer grades into a session score.
package scoring

import (
	"time"

	"github.com/pavelanni/studyhall/internal/model"
)

// Score returns the session score in [0, 1]: the sum of answer scores
// (0-100, scaled to 0-1) divided by the number of questions in the session.
// Unanswered and ungraded questions count as zero.
func Score(s model.QuizSession) float64 {
	if len(s.Questions) == 0 {
		return 0
	}
	var sum float64
	for _, q := range s.Questions {
		a, ok := s.Answers[q.ID]
		if !ok || a.Score == nil {
			continue
		}
		sum += min(max(*a.Score, 0), 100) / 100
	}
	return sum / float64(len(s.Questions))
}

// Finalize marks the session completed at now with its aggregate score.
func Finalize(s *model.QuizSession, now time.Time) {
	s.Score = Score(*s)
	s.Completed = true
	t := now.UTC()
	s.FinishedAt = &t
}

// WeakTags returns the tags of questions whose answer scored below half,
// in first-seen order.
func WeakTags(s model.QuizSession) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, q := range s.Questions {
		a, ok := s.Answers[q.ID]
		if !ok || a.Score == nil || *a.Score >= 50 {
			continue
		}
		for _, t := range q.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}
