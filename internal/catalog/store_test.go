package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/biolingo/sync-engine/internal/infrastructure/validate"
	"go.uber.org/zap"
)

type staticProvider struct {
	courses []*CourseRef
}

func (sp *staticProvider) FetchCatalog(ctx context.Context) ([]*CourseRef, error) {
	return sp.courses, nil
}

func validCourse(id string, lessons ...*LessonRef) *CourseRef {
	return &CourseRef{ID: id, Title: "Course " + id, Lessons: lessons}
}

func readingLesson(id string) *LessonRef {
	return &LessonRef{
		ID:      id,
		Title:   "Lesson " + id,
		Type:    LessonReading,
		Content: LessonContent{Paragraphs: []string{"text"}},
	}
}

func buildStore(t *testing.T, courses ...*CourseRef) (*Store, error) {
	t.Helper()
	return NewStore(context.Background(), &staticProvider{courses}, validate.NewValidator(), zap.NewNop())
}

func TestStoreLookups(t *testing.T) {
	store, err := buildStore(t,
		validCourse("c1", readingLesson("l1"), readingLesson("l2")),
		validCourse("c2", readingLesson("l3")),
	)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	if len(store.Courses()) != 2 {
		t.Errorf("expected 2 courses, got %d", len(store.Courses()))
	}
	if store.LessonCount() != 3 {
		t.Errorf("expected 3 lessons, got %d", store.LessonCount())
	}

	course, ok := store.CourseByID("c2")
	if !ok || course.ID != "c2" {
		t.Errorf("course lookup failed: %v %v", course, ok)
	}
	if _, ok := store.CourseByID("nope"); ok {
		t.Error("expected miss for unknown course")
	}

	lesson, owner, ok := store.LessonByID("l3")
	if !ok || lesson.ID != "l3" || owner.ID != "c2" {
		t.Errorf("lesson lookup failed: %v %v %v", lesson, owner, ok)
	}
	if !store.HasLesson("l1") || store.HasLesson("nope") {
		t.Error("HasLesson mismatch")
	}
}

func TestStoreRejectsDuplicateIDs(t *testing.T) {
	if _, err := buildStore(t,
		validCourse("c1", readingLesson("l1")),
		validCourse("c1", readingLesson("l2")),
	); err == nil || !strings.Contains(err.Error(), "duplicated course") {
		t.Errorf("expected duplicated course error, got %v", err)
	}

	if _, err := buildStore(t,
		validCourse("c1", readingLesson("l1")),
		validCourse("c2", readingLesson("l1")),
	); err == nil || !strings.Contains(err.Error(), "duplicated lesson") {
		t.Errorf("expected duplicated lesson error, got %v", err)
	}
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	lesson := &LessonRef{ID: "l1", Title: "Empty quiz", Type: LessonQuiz}
	if _, err := buildStore(t, validCourse("c1", lesson)); err == nil {
		t.Error("expected empty content to be rejected")
	}
}

func TestStoreRejectsInvalidPayload(t *testing.T) {
	lesson := &LessonRef{
		ID:    "l1",
		Title: "Bad quiz",
		Type:  LessonQuiz,
		Content: LessonContent{Questions: []*QuizQuestion{
			{Question: "Hello?", Options: []string{"only one"}, CorrectAnswer: "only one"},
		}},
	}
	if _, err := buildStore(t, validCourse("c1", lesson)); err == nil {
		t.Error("expected a single-option quiz to be rejected")
	}
}

func TestStoreRejectsCourseWithoutLessons(t *testing.T) {
	if _, err := buildStore(t, &CourseRef{ID: "c1", Title: "Empty"}); err == nil {
		t.Error("expected a lessonless course to be rejected")
	}
}

func TestLessonRefWireFormat(t *testing.T) {
	payload := `{
		"id": "c1",
		"title": "Basics",
		"lessons": [
			{"id": "l1", "title": "Read", "type": "READING", "content": ["hello"]},
			{"id": "l2", "title": "Quiz", "type": "QUIZ", "content": [
				{"question": "?", "options": ["a", "b"], "correctAnswer": "a"}
			]},
			{"id": "l3", "title": "Match", "type": "MATCHING", "content": [
				{"id": 1, "term": "hola", "definition": "hello"}
			]},
			{"id": "l4", "title": "Cards", "type": "FLASHCARD", "content": [
				{"id": "f1", "term": "gato", "translation": "cat"}
			]}
		]
	}`

	var course CourseRef
	if err := json.Unmarshal([]byte(payload), &course); err != nil {
		t.Fatalf("failed to decode course: %v", err)
	}
	if len(course.Lessons[0].Content.Paragraphs) != 1 {
		t.Error("reading content not decoded")
	}
	if len(course.Lessons[1].Content.Questions) != 1 {
		t.Error("quiz content not decoded")
	}
	if len(course.Lessons[2].Content.Pairs) != 1 {
		t.Error("matching content not decoded")
	}
	if len(course.Lessons[3].Content.Cards) != 1 {
		t.Error("flashcard content not decoded")
	}

	// round trip keeps the bare-array content shape
	encoded, err := json.Marshal(course.Lessons[0])
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatal(err)
	}
	var paragraphs []string
	if err := json.Unmarshal(wire["content"], &paragraphs); err != nil || len(paragraphs) != 1 {
		t.Errorf("expected bare paragraph array on the wire, got %s", wire["content"])
	}
}

func TestLessonRefRejectsUnknownType(t *testing.T) {
	payload := `{"id": "l1", "title": "X", "type": "VIDEO", "content": ["x"]}`
	var lesson LessonRef
	if err := json.Unmarshal([]byte(payload), &lesson); err == nil {
		t.Error("expected unknown lesson type to be rejected")
	}
}

func TestLessonRefRejectsMismatchedContent(t *testing.T) {
	payload := `{"id": "l1", "title": "X", "type": "QUIZ", "content": ["not a question"]}`
	var lesson LessonRef
	if err := json.Unmarshal([]byte(payload), &lesson); err == nil {
		t.Error("expected mismatched content to be rejected")
	}
}
