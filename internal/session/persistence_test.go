package session

import (
	"context"
	"testing"

	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/model"
)

func TestPersisterRoundTrip(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store, nopLog())
	ctx := context.Background()

	snap := &model.SessionSnapshot{
		ExamID:               "exam-1",
		Mode:                 model.ModeExam,
		TimeRemainingSeconds: 120,
		SavedAtEpochMs:       1_700_000_000_000,
		Answers:              map[string]model.AnswerValue{"q1": model.BoolAnswer(true)},
		SelectedItems:        []model.TestItem{questionItem(trueFalse("q1", model.ModeExam))},
		FlaggedIndices:       []int{0},
	}
	if err := p.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !store.has("exam_session_exam-1_exam") {
		t.Fatalf("snapshot not stored under the session key: %v", store.data)
	}

	got := p.Load(ctx, "exam-1", model.ModeExam)
	if !got.Resumable() {
		t.Fatalf("loaded snapshot not resumable: %+v", got)
	}
	if v := got.Answers["q1"]; v.Bool == nil || !*v.Bool {
		t.Fatalf("answer lost: %+v", v)
	}
	if p.Load(ctx, "exam-1", model.ModeSimulator) != nil {
		t.Fatal("modes must not share snapshots")
	}

	if err := p.Clear(ctx, "exam-1", model.ModeExam); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if p.Load(ctx, "exam-1", model.ModeExam) != nil {
		t.Fatal("snapshot survived Clear")
	}
}

func TestPersisterTreatsBadSnapshotsAsAbsent(t *testing.T) {
	key := config.CacheKey.ExamSessionKey("exam-1", "exam")
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{oops"},
		{"wrong shape", `{"exam_id": 12}`},
		{"other exam", `{"exam_id":"exam-2","mode":"exam","time_remaining":10}`},
		{"malformed item", `{"exam_id":"exam-1","mode":"exam","time_remaining":10,"selected_items":[{"kind":"question","id":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.data[key] = tt.raw
			if got := NewPersister(store, nopLog()).Load(context.Background(), "exam-1", model.ModeExam); got != nil {
				t.Fatalf("Load = %+v, want nil", got)
			}
		})
	}

	t.Run("store error", func(t *testing.T) {
		store := newFakeStore()
		store.getErr = errBoom
		if got := NewPersister(store, nopLog()).Load(context.Background(), "exam-1", model.ModeExam); got != nil {
			t.Fatalf("Load = %+v, want nil", got)
		}
	})
}

func TestSnapshotResumable(t *testing.T) {
	items := []model.TestItem{questionItem(trueFalse("q1", model.ModeExam))}
	tests := []struct {
		name string
		snap *model.SessionSnapshot
		want bool
	}{
		{"nil", nil, false},
		{"no items", &model.SessionSnapshot{TimeRemainingSeconds: 10}, false},
		{"no time", &model.SessionSnapshot{SelectedItems: items}, false},
		{"resumable", &model.SessionSnapshot{SelectedItems: items, TimeRemainingSeconds: 1}, true},
	}
	for _, tt := range tests {
		if got := tt.snap.Resumable(); got != tt.want {
			t.Errorf("%s: Resumable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPersisterRestoresEmptyGroupingAnswersByType(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store, nopLog())
	ctx := context.Background()

	grouping, blanks := columns("cg"), dragDrop("dd")
	snap := &model.SessionSnapshot{
		ExamID:               "exam-1",
		Mode:                 model.ModeExam,
		TimeRemainingSeconds: 60,
		Answers: map[string]model.AnswerValue{
			"cg": model.ColumnsAnswer(nil),
			"dd": model.BlanksAnswer(nil),
		},
		SelectedItems: []model.TestItem{questionItem(grouping), questionItem(blanks)},
	}
	if err := p.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := p.Load(ctx, "exam-1", model.ModeExam)
	if got == nil {
		t.Fatal("snapshot not restored")
	}
	if cg := got.Answers["cg"]; cg.Columns == nil || cg.Blanks != nil || len(cg.Columns) != 0 {
		t.Fatalf("column answer = %+v, want empty columns", cg)
	}
	if dd := got.Answers["dd"]; dd.Blanks == nil || dd.Columns != nil || len(dd.Blanks) != 0 {
		t.Fatalf("blank answer = %+v, want empty blanks", dd)
	}
}
