package session

import (
	"errors"
	"slices"
	"testing"

	"github.com/stemsi/exstem-runtime/internal/model"
)

func TestAssignBlankAtMostOnce(t *testing.T) {
	s := NewAnswerStore()
	it := questionItem(dragDrop("dd"))

	if err := s.AssignBlank(&it, "b1", "o1"); err != nil {
		t.Fatalf("AssignBlank: %v", err)
	}
	if err := s.AssignBlank(&it, "b2", "o1"); err != nil {
		t.Fatalf("AssignBlank: %v", err)
	}
	v, _ := s.Answer("dd")
	if _, ok := v.Blanks["b1"]; ok {
		t.Fatalf("b1 still holds a value: %v", v.Blanks)
	}
	if v.Blanks["b2"] != "o1" {
		t.Fatalf("b2 = %q, want o1", v.Blanks["b2"])
	}

	if err := s.ClearBlank(&it, "b2"); err != nil {
		t.Fatalf("ClearBlank: %v", err)
	}
	v, _ = s.Answer("dd")
	if len(v.Blanks) != 0 {
		t.Fatalf("blanks = %v, want empty", v.Blanks)
	}
}

func TestAssignColumnAtMostOnce(t *testing.T) {
	s := NewAnswerStore()
	it := questionItem(columns("cg"))

	for _, step := range []struct{ col, opt string }{{"c1", "o1"}, {"c1", "o2"}, {"c2", "o1"}} {
		if err := s.AssignColumn(&it, step.col, step.opt); err != nil {
			t.Fatalf("AssignColumn(%s, %s): %v", step.col, step.opt, err)
		}
	}
	v, _ := s.Answer("cg")
	if !slices.Equal(v.Columns["c1"], []string{"o2"}) || !slices.Equal(v.Columns["c2"], []string{"o1"}) {
		t.Fatalf("columns = %v", v.Columns)
	}

	if err := s.AssignColumn(&it, "c2", "o2"); err != nil {
		t.Fatalf("AssignColumn: %v", err)
	}
	v, _ = s.Answer("cg")
	if _, ok := v.Columns["c1"]; ok {
		t.Fatalf("emptied column kept: %v", v.Columns)
	}
}

func TestSetAnswerRejectsDuplicatePlacement(t *testing.T) {
	s := NewAnswerStore()
	dd := questionItem(dragDrop("dd"))
	err := s.SetAnswer(&dd, model.BlanksAnswer(map[string]string{"b1": "o1", "b2": "o1"}))
	if !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("err = %v, want ErrInvalidAnswer", err)
	}

	cg := questionItem(columns("cg"))
	err = s.SetAnswer(&cg, model.ColumnsAnswer(map[string][]string{"c1": {"o1"}, "c2": {"o1"}}))
	if !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("err = %v, want ErrInvalidAnswer", err)
	}
}

func TestSwapOrderKeepsTotalOrder(t *testing.T) {
	s := NewAnswerStore()
	it := questionItem(ordering("o", model.ModeExam, "a", "b", "c"))
	s.Seed(map[string]model.AnswerValue{"o": model.ListAnswer([]string{"c", "a", "b"})})

	if s.IsAnswered(&it) {
		t.Fatal("seeded ordering counts as answered before interaction")
	}
	if err := s.SwapOrder(&it, 0, 2); err != nil {
		t.Fatalf("SwapOrder: %v", err)
	}
	v, _ := s.Answer("o")
	if !slices.Equal(v.IDs, []string{"b", "a", "c"}) {
		t.Fatalf("order = %v", v.IDs)
	}
	if !s.IsAnswered(&it) {
		t.Fatal("ordering should be answered after a swap")
	}
	if err := s.SwapOrder(&it, 0, 3); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("err = %v, want ErrInvalidPosition", err)
	}
}

func TestSetAnswerValidation(t *testing.T) {
	s := NewAnswerStore()
	tf := questionItem(trueFalse("tf", model.ModeExam))
	mc := questionItem(choice("mc", model.ModeExam, "a", "b"))
	ms := questionItem(choice("ms", model.ModeExam, "a", "b", "c"))
	ms.Question.QuestionType = model.QuestionTypeMultipleSelect
	ord := questionItem(ordering("ord", model.ModeExam, "a", "b"))

	tests := []struct {
		name    string
		item    *model.TestItem
		value   model.AnswerValue
		wantErr bool
	}{
		{"true_false needs bool", &tf, model.ChoiceAnswer("a"), true},
		{"true_false ok", &tf, model.BoolAnswer(false), false},
		{"unknown option", &mc, model.ChoiceAnswer("z"), true},
		{"single choice ok", &mc, model.ChoiceAnswer("b"), false},
		{"multi select unknown", &ms, model.ListAnswer([]string{"a", "z"}), true},
		{"multi select ok", &ms, model.ListAnswer([]string{"a", "c", "a"}), false},
		{"ordering partial", &ord, model.ListAnswer([]string{"a"}), true},
		{"ordering ok", &ord, model.ListAnswer([]string{"b", "a"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetAnswer(tt.item, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if v, _ := s.Answer("ms"); !slices.Equal(v.IDs, []string{"a", "c"}) {
		t.Fatalf("multi select not deduplicated: %v", v.IDs)
	}
	if v, _ := s.Answer("tf"); v.Bool == nil || *v.Bool {
		t.Fatalf("false answer lost: %+v", v)
	}
	if !s.IsAnswered(&tf) || !s.IsAnswered(&ord) {
		t.Fatal("answered items not reported")
	}

	if err := s.SetAnswer(&ms, model.ListAnswer(nil)); err != nil {
		t.Fatalf("clearing selection: %v", err)
	}
	if s.IsAnswered(&ms) {
		t.Fatal("empty selection still answered")
	}
}

func TestExerciseAnsweredWhenAllStepsCompleted(t *testing.T) {
	s := NewAnswerStore()
	ex := twoStepExercise("ex", model.ErrorPolicyShowMessage, 0)
	it := exerciseItem(ex)

	s.markStepCompleted("ex", 0)
	if s.IsAnswered(&it) {
		t.Fatal("half-done exercise counted as answered")
	}
	if got := s.FirstPendingStep(ex); got != 1 {
		t.Fatalf("FirstPendingStep = %d, want 1", got)
	}
	s.markStepCompleted("ex", 1)
	if !s.IsAnswered(&it) {
		t.Fatal("finished exercise not answered")
	}
}
