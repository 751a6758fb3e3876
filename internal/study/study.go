// Package study wires ingestion, retrieval, generation, grading and storage
// into the flows the API and CLI expose.
package study

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/pavelanni/studyhall/internal/library"
	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/model"
	"github.com/pavelanni/studyhall/internal/retrieval"
	"github.com/pavelanni/studyhall/internal/scoring"
	"github.com/pavelanni/studyhall/internal/storage"
	"github.com/pavelanni/studyhall/internal/store"
	"github.com/pavelanni/studyhall/internal/tutor"
)

// MaxQuestionsPerQuiz bounds the requested question count.
const MaxQuestionsPerQuiz = 50

var (
	// ErrInvalidRequest marks input the caller must fix.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNothingGenerated is returned when the model output yielded nothing usable.
	ErrNothingGenerated = errors.New("the model returned nothing usable")
	// ErrSessionCompleted is returned when answering a finished session.
	ErrSessionCompleted = errors.New("session is already completed")
)

// Normalizer converts uploads into model content.
type Normalizer interface {
	Normalize(ctx context.Context, files []model.UploadedFile) []model.ContentPart
}

// Sessions persists quiz sessions.
type Sessions interface {
	CreateSession(ctx context.Context, s model.QuizSession) error
	GetSession(ctx context.Context, id string) (model.QuizSession, error)
	SaveAnswer(ctx context.Context, sessionID string, a model.UserAnswer) error
	FinalizeSession(ctx context.Context, id string, score float64, finishedAt time.Time) error
	ListSessions(ctx context.Context) ([]store.SessionSummary, error)
}

// Catalog is direct store access for single lookups and the tag index.
type Catalog interface {
	GetQuestion(ctx context.Context, id string) (model.Question, error)
	GetSyllabus(ctx context.Context, id string) (model.Syllabus, error)
	QuestionsByTag(ctx context.Context, tag string) ([]model.Question, error)
	QuestionCount(ctx context.Context) (int, error)
}

// Service is the application layer.
type Service struct {
	normalizer Normalizer
	library    *library.Library
	retriever  *retrieval.Retriever
	sessions   Sessions
	catalog    Catalog
	blobs      storage.BlobStore
	generator  *tutor.Generator
	grader     *tutor.Grader
	planner    *tutor.Planner
	now        func() time.Time
}

// Deps are the collaborators of a Service.
type Deps struct {
	Normalizer Normalizer
	Library    *library.Library
	Sessions   Sessions
	Catalog    Catalog
	Blobs      storage.BlobStore
	Client     llm.Client
}

// New creates a Service. Retrieval reads the in-memory library, which always
// mirrors the store.
func New(d Deps) *Service {
	r := retrieval.New(d.Library)
	return &Service{
		normalizer: d.Normalizer,
		library:    d.Library,
		retriever:  r,
		sessions:   d.Sessions,
		catalog:    d.Catalog,
		blobs:      d.Blobs,
		generator:  tutor.NewGenerator(d.Client, r),
		grader:     tutor.NewGrader(d.Client),
		planner:    tutor.NewPlanner(d.Client),
		now:        time.Now,
	}
}

// Retriever exposes the knowledge base search.
func (s *Service) Retriever() *retrieval.Retriever { return s.retriever }

// Library exposes the in-memory knowledge base.
func (s *Service) Library() *library.Library { return s.library }

// GenerationStatus is the state of the most recent generation run.
type GenerationStatus struct {
	Phase       tutor.Phase    `json:"phase"`
	LastFailure *tutor.Failure `json:"lastFailure,omitempty"`
}

// GenerationStatus reports the phase of the most recent generation run and
// why it failed or what it had to drop.
func (s *Service) GenerationStatus() GenerationStatus {
	st := GenerationStatus{Phase: s.generator.Phase()}
	if f, ok := s.generator.LastFailure(); ok {
		st.LastFailure = &f
	}
	return st
}

// Question returns one question of the bank.
func (s *Service) Question(ctx context.Context, id string) (model.Question, error) {
	return s.catalog.GetQuestion(ctx, id)
}

// Syllabus returns one stored syllabus.
func (s *Service) Syllabus(ctx context.Context, id string) (model.Syllabus, error) {
	return s.catalog.GetSyllabus(ctx, id)
}

// QuestionsByTag returns the questions carrying exactly tag.
func (s *Service) QuestionsByTag(ctx context.Context, tag string) ([]model.Question, error) {
	return s.catalog.QuestionsByTag(ctx, strings.TrimSpace(tag))
}

// QuestionCount reads the size of the question bank from the store.
func (s *Service) QuestionCount(ctx context.Context) (int, error) {
	return s.catalog.QuestionCount(ctx)
}

// QuizRequest is a request for a new quiz session.
type QuizRequest struct {
	Title      string
	Topic      string
	Difficulty model.Difficulty
	Count      int
	Types      []model.QuestionType
	Files      []model.UploadedFile
}

func (r QuizRequest) validate() error {
	if strings.TrimSpace(r.Topic) == "" && len(r.Files) == 0 {
		return fmt.Errorf("%w: a topic or at least one file is required", ErrInvalidRequest)
	}
	if r.Count < 0 || r.Count > MaxQuestionsPerQuiz {
		return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, MaxQuestionsPerQuiz)
	}
	if !r.Difficulty.IsValid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, r.Difficulty)
	}
	for _, t := range r.Types {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown question type %q", ErrInvalidRequest, t)
		}
	}
	return nil
}

// GenerateQuiz generates questions, adds them to the question bank and opens
// a session over them.
func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (model.QuizSession, error) {
	if err := req.validate(); err != nil {
		return model.QuizSession{}, err
	}
	parts := s.normalizer.Normalize(ctx, req.Files)
	questions, err := s.generator.GenerateQuestions(ctx, tutor.QuizRequest{
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		Types:      req.Types,
		Material:   parts,
		Sources:    fileNames(req.Files),
	})
	if err != nil {
		return model.QuizSession{}, err
	}
	if len(questions) == 0 {
		return model.QuizSession{}, ErrNothingGenerated
	}
	if _, err := s.library.MergeQuestions(ctx, questions); err != nil {
		return model.QuizSession{}, err
	}

	title := req.Title
	if title == "" {
		title = req.Topic
	}
	if title == "" {
		title = "Quiz"
	}
	sess := model.QuizSession{
		ID:        uuid.NewString(),
		Title:     title,
		Questions: questions,
		Answers:   map[string]model.UserAnswer{},
		StartedAt: s.now().UTC(),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return model.QuizSession{}, fmt.Errorf("create session: %w", err)
	}
	slog.Info("quiz session started", "session", sess.ID, "questions", len(questions))
	return sess, nil
}

// GenerateSyllabus generates a course outline and stores it.
func (s *Service) GenerateSyllabus(ctx context.Context, topic string, files []model.UploadedFile) (model.Syllabus, error) {
	if strings.TrimSpace(topic) == "" && len(files) == 0 {
		return model.Syllabus{}, fmt.Errorf("%w: a topic or at least one file is required", ErrInvalidRequest)
	}
	parts := s.normalizer.Normalize(ctx, files)
	syl, err := s.generator.GenerateSyllabus(ctx, tutor.SyllabusRequest{Topic: topic, Material: parts, Sources: fileNames(files)})
	if err != nil {
		return model.Syllabus{}, err
	}
	if syl == nil {
		return model.Syllabus{}, ErrNothingGenerated
	}
	if _, err := s.library.MergeSyllabuses(ctx, []model.Syllabus{*syl}); err != nil {
		return model.Syllabus{}, err
	}
	return *syl, nil
}

// ImportFiles extracts syllabuses and questions from uploaded documents and
// merges them into the knowledge base.
func (s *Service) ImportFiles(ctx context.Context, files []model.UploadedFile) (tutor.Extraction, model.MergeReport, error) {
	if len(files) == 0 {
		return tutor.Extraction{}, model.MergeReport{}, fmt.Errorf("%w: no files", ErrInvalidRequest)
	}
	parts := s.normalizer.Normalize(ctx, files)
	if len(parts) == 0 {
		return tutor.Extraction{}, model.MergeReport{}, fmt.Errorf("%w: none of the files could be read", ErrInvalidRequest)
	}
	ext, err := s.generator.AnalyzeFiles(ctx, parts, fileNames(files))
	if err != nil {
		return tutor.Extraction{}, model.MergeReport{}, err
	}
	if ext.Empty() {
		return ext, model.MergeReport{}, ErrNothingGenerated
	}
	b := model.Backup{QuestionBank: ext.Questions}
	if ext.Syllabus != nil {
		b.Syllabuses = []model.Syllabus{*ext.Syllabus}
	}
	report, err := s.library.MergeBackup(ctx, b)
	if err != nil {
		return ext, model.MergeReport{}, err
	}
	return ext, report, nil
}

// ImportBackup merges a backup file into the knowledge base.
func (s *Service) ImportBackup(ctx context.Context, name string, data []byte) (model.MergeReport, error) {
	report, err := s.library.ImportBackupFile(ctx, name, data)
	if errors.Is(err, library.ErrMalformedBackup) || errors.Is(err, model.ErrInvalid) {
		return report, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return report, err
}

// ExportBackup returns the whole knowledge base.
func (s *Service) ExportBackup() model.Backup {
	return s.library.Export()
}

// GetSession returns a stored session.
func (s *Service) GetSession(ctx context.Context, id string) (model.QuizSession, error) {
	return s.sessions.GetSession(ctx, id)
}

// ListSessions returns all sessions, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]store.SessionSummary, error) {
	return s.sessions.ListSessions(ctx)
}

// SubmitAnswer grades and records the answer to one question of a session.
// Diagram images are kept in blob storage and referenced from the answer.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, questionID string, sub model.Submission) (model.UserAnswer, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return model.UserAnswer{}, err
	}
	if sess.Completed {
		return model.UserAnswer{}, ErrSessionCompleted
	}
	q, ok := sess.Question(questionID)
	if !ok {
		return model.UserAnswer{}, fmt.Errorf("%w: question %s is not part of session %s", ErrInvalidRequest, questionID, sessionID)
	}

	v, err := s.grader.Grade(ctx, q, sub)
	if err != nil {
		return model.UserAnswer{}, err
	}

	resp := model.Response{Text: sub.Text, List: sub.List}
	if sub.Image != nil {
		ref, err := s.storeImage(sessionID, questionID, sub.Image)
		if err != nil {
			return model.UserAnswer{}, fmt.Errorf("store diagram: %w", err)
		}
		resp.BlobRef = ref
		resp.MediaType = sub.Image.MediaType
	}
	answer := model.UserAnswer{
		QuestionID: questionID,
		Response:   resp,
		IsCorrect:  &v.IsCorrect,
		Feedback:   v.Feedback,
		Score:      &v.Score,
	}
	if err := s.sessions.SaveAnswer(ctx, sessionID, answer); err != nil {
		if resp.BlobRef != "" {
			if derr := s.blobs.Delete(resp.BlobRef); derr != nil {
				slog.Warn("orphaned diagram blob", "key", resp.BlobRef, "error", derr)
			}
		}
		return model.UserAnswer{}, fmt.Errorf("save answer: %w", err)
	}
	return answer, nil
}

// AnswerImage opens the diagram submitted for a question of a session.
func (s *Service) AnswerImage(ctx context.Context, sessionID, questionID string) (io.ReadCloser, string, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	a, ok := sess.Answers[questionID]
	if !ok || a.Response.BlobRef == "" {
		return nil, "", fmt.Errorf("diagram for %s in session %s: %w", questionID, sessionID, store.ErrNotFound)
	}
	rc, err := s.blobs.Get(a.Response.BlobRef)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("diagram %s: %w", a.Response.BlobRef, store.ErrNotFound)
	}
	if err != nil {
		return nil, "", err
	}
	mediaType := a.Response.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return rc, mediaType, nil
}

func (s *Service) storeImage(sessionID, questionID string, img *model.ImageBlob) (string, error) {
	m := mimetype.Lookup(img.MediaType)
	if m == nil {
		m = mimetype.Detect(img.Data)
	}
	ext := m.Extension()
	if ext == "" {
		ext = ".bin"
	}
	key := fmt.Sprintf("sessions/%s/%s-%s%s", sessionID, questionID, uuid.NewString(), ext)
	return s.blobs.Put(key, bytes.NewReader(img.Data))
}

// FinishSession scores and closes a session.
func (s *Service) FinishSession(ctx context.Context, id string) (model.QuizSession, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return model.QuizSession{}, err
	}
	if sess.Completed {
		return sess, nil
	}
	scoring.Finalize(&sess, s.now())
	if err := s.sessions.FinalizeSession(ctx, id, sess.Score, *sess.FinishedAt); err != nil {
		return model.QuizSession{}, err
	}
	slog.Info("quiz session finished", "session", id, "score", sess.Score)
	return sess, nil
}

// StudyPlan writes a plan for topic. When sessionID is set, the tags the
// learner scored poorly on in that session get extra weight.
func (s *Service) StudyPlan(ctx context.Context, topic, sessionID string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	syllabuses, err := s.retriever.FindRelevantSyllabuses(ctx, topic)
	if err != nil {
		return "", err
	}
	if len(syllabuses) > tutor.DefaultMaxSyllabuses {
		syllabuses = syllabuses[:tutor.DefaultMaxSyllabuses]
	}
	var weak []string
	if sessionID != "" {
		sess, err := s.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		weak = scoring.WeakTags(sess)
	}
	return s.planner.StudyPlan(ctx, topic, syllabuses, weak)
}

func fileNames(files []model.UploadedFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names
}
