package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AnswerValue is the candidate's current answer to one question. Its JSON shape depends on the
// question type: a boolean (true_false), a single option id (multiple_choice), an id list
// (multiple_select set, ordering sequence), a blank→id map (drag_drop) or a column→ids map
// (column_grouping).
type AnswerValue struct {
	Bool    *bool
	ID      string
	IDs     []string
	Blanks  map[string]string
	Columns map[string][]string
}

func BoolAnswer(v bool) AnswerValue { return AnswerValue{Bool: &v} }

func ChoiceAnswer(id string) AnswerValue { return AnswerValue{ID: id} }

func ListAnswer(ids []string) AnswerValue {
	return AnswerValue{IDs: append([]string{}, ids...)}
}

func BlanksAnswer(m map[string]string) AnswerValue {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return AnswerValue{Blanks: out}
}

func ColumnsAnswer(m map[string][]string) AnswerValue {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string{}, v...)
	}
	return AnswerValue{Columns: out}
}

// IsZero reports whether no value has been recorded.
func (a AnswerValue) IsZero() bool {
	return a.Bool == nil && a.ID == "" && a.IDs == nil && a.Blanks == nil && a.Columns == nil
}

// Clone returns a deep copy.
func (a AnswerValue) Clone() AnswerValue {
	out := AnswerValue{ID: a.ID}
	if a.Bool != nil {
		b := *a.Bool
		out.Bool = &b
	}
	if a.IDs != nil {
		out.IDs = append([]string{}, a.IDs...)
	}
	if a.Blanks != nil {
		out.Blanks = BlanksAnswer(a.Blanks).Blanks
	}
	if a.Columns != nil {
		out.Columns = ColumnsAnswer(a.Columns).Columns
	}
	return out
}

// ForType resolves JSON shapes that more than one question type shares. An empty object
// decodes as blanks; a column_grouping answer needs it as columns.
func (a AnswerValue) ForType(t QuestionType) AnswerValue {
	switch t {
	case QuestionTypeColumnGrouping:
		if a.Columns == nil && a.Blanks != nil && len(a.Blanks) == 0 {
			return AnswerValue{Columns: map[string][]string{}}
		}
	case QuestionTypeDragDrop:
		if a.Blanks == nil && a.Columns != nil && len(a.Columns) == 0 {
			return AnswerValue{Blanks: map[string]string{}}
		}
	}
	return a
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	switch {
	case a.Bool != nil:
		return json.Marshal(*a.Bool)
	case a.Columns != nil:
		return json.Marshal(a.Columns)
	case a.Blanks != nil:
		return json.Marshal(a.Blanks)
	case a.IDs != nil:
		return json.Marshal(a.IDs)
	case a.ID != "":
		return json.Marshal(a.ID)
	}
	return []byte("null"), nil
}

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	*a = AnswerValue{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case 'n':
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		a.Bool = &b
	case '"':
		return json.Unmarshal(data, &a.ID)
	case '[':
		ids := []string{}
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		a.IDs = ids
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		for _, v := range raw {
			if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
				a.Columns = map[string][]string{}
				return json.Unmarshal(data, &a.Columns)
			}
		}
		a.Blanks = map[string]string{}
		return json.Unmarshal(data, &a.Blanks)
	default:
		return fmt.Errorf("unsupported answer value: %s", data)
	}
	return nil
}

// ActionResponse records how the candidate used one exercise action.
type ActionResponse struct {
	Value   string `json:"value,omitempty"`
	Correct bool   `json:"correct"`
}

// ActionError tracks failed attempts on an exercise action.
type ActionError struct {
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
	Locked   bool   `json:"locked,omitempty"`
}
