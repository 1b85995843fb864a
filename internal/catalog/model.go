package catalog

import (
	"encoding/json"
	"fmt"
)

// LessonType discriminates the lesson content payload
type LessonType string

// lesson types
const (
	LessonReading   LessonType = "READING"
	LessonQuiz      LessonType = "QUIZ"
	LessonMatching  LessonType = "MATCHING"
	LessonFlashcard LessonType = "FLASHCARD"
)

func (t LessonType) valid() bool {
	switch t {
	case LessonReading, LessonQuiz, LessonMatching, LessonFlashcard:
		return true
	}
	return false
}

// QuizQuestion single choice question
type QuizQuestion struct {
	Question      string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
}

// MatchingPair term/definition pair for matching lessons
type MatchingPair struct {
	ID         int    `json:"id"`
	Term       string `json:"term" validate:"required"`
	Definition string `json:"definition" validate:"required"`
}

// Flashcard term/translation card
type Flashcard struct {
	ID          string `json:"id"`
	Term        string `json:"term" validate:"required"`
	Translation string `json:"translation" validate:"required"`
}

// LessonContent tagged content payload, exactly one member is populated
// depending on the lesson type
type LessonContent struct {
	Paragraphs []string        `json:"paragraphs,omitempty"`
	Questions  []*QuizQuestion `json:"questions,omitempty"`
	Pairs      []*MatchingPair `json:"pairs,omitempty"`
	Cards      []*Flashcard    `json:"cards,omitempty"`
}

// LessonRef immutable lesson reference, owned by the content provider
type LessonRef struct {
	ID      string        `json:"id" validate:"required"`
	Title   string        `json:"title" validate:"required"`
	Type    LessonType    `json:"type" validate:"required"`
	Content LessonContent `json:"content"`
}

// CourseRef immutable course reference. Lesson ordering is significant for
// downstream unlocking logic and is preserved as delivered
type CourseRef struct {
	ID          string       `json:"id" validate:"required"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Color       string       `json:"color"`
	Lessons     []*LessonRef `json:"lessons" validate:"min=1"`
}

// lessonRefWire matches the provider payload, where content is a bare array
// whose element shape depends on the lesson type
type lessonRefWire struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Type    LessonType      `json:"type"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON decode the untyped content union into the variant selected by
// the lesson type
func (l *LessonRef) UnmarshalJSON(data []byte) error {
	var wire lessonRefWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	l.ID = wire.ID
	l.Title = wire.Title
	l.Type = wire.Type
	l.Content = LessonContent{}
	if !wire.Type.valid() {
		return fmt.Errorf("lesson %q: unknown lesson type %q", wire.ID, wire.Type)
	}
	if len(wire.Content) == 0 {
		return fmt.Errorf("lesson %q: missing content", wire.ID)
	}

	var err error
	switch wire.Type {
	case LessonReading:
		err = json.Unmarshal(wire.Content, &l.Content.Paragraphs)
	case LessonQuiz:
		err = json.Unmarshal(wire.Content, &l.Content.Questions)
	case LessonMatching:
		err = json.Unmarshal(wire.Content, &l.Content.Pairs)
	case LessonFlashcard:
		err = json.Unmarshal(wire.Content, &l.Content.Cards)
	}
	if err != nil {
		return fmt.Errorf("lesson %q: content does not match type %s: %w", wire.ID, wire.Type, err)
	}
	return nil
}

// MarshalJSON encode content back to the wire union shape
func (l *LessonRef) MarshalJSON() ([]byte, error) {
	var content interface{}
	switch l.Type {
	case LessonReading:
		content = l.Content.Paragraphs
	case LessonQuiz:
		content = l.Content.Questions
	case LessonMatching:
		content = l.Content.Pairs
	case LessonFlashcard:
		content = l.Content.Cards
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&lessonRefWire{
		ID:      l.ID,
		Title:   l.Title,
		Type:    l.Type,
		Content: raw,
	})
}
