package extract

import (
	"encoding/json"
	"testing"

	"github.com/ppiankov/sourcecheck/internal/model"
)

func schemaOf(fields ...model.FieldSpec) *model.Schema {
	return &model.Schema{MissingFields: model.MissingSkip, Fields: fields}
}

func fieldsOf(claims []model.Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.Field
	}
	return out
}

func TestExtract_KeyRule(t *testing.T) {
	schema := schemaOf(
		model.FieldSpec{Name: "chief_complaint"},
		model.FieldSpec{Name: "age", Key: "patient_age"},
	)
	payload := map[string]any{"patient_age": 54.0, "chief_complaint": "Chest pain for 2 days"}

	claims, err := Extract(payload, schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claims))
	}
	if claims[0] != (model.Claim{Field: "chief_complaint", Text: "Chest pain for 2 days"}) {
		t.Errorf("unexpected first claim: %+v", claims[0])
	}
	if claims[1] != (model.Claim{Field: "age", Text: "54"}) {
		t.Errorf("unexpected second claim: %+v", claims[1])
	}
}

func TestExtract_PathRule(t *testing.T) {
	payload := map[string]any{
		"note": map[string]any{
			"sections": []any{
				map[string]any{"title": "CC", "text": "Chest pain"},
				map[string]any{"title": "HPI", "text": "Pain started two days ago."},
			},
			"meds": []any{"aspirin", "metoprolol"},
		},
	}
	schema := schemaOf(
		model.FieldSpec{Name: "hpi", Source: model.SourcePath, Path: "note.sections[title=HPI].text"},
		model.FieldSpec{Name: "first", Source: model.SourcePath, Path: "note.sections[0].text"},
		model.FieldSpec{Name: "titles", Source: model.SourcePath, Path: "note.sections[*].title"},
		model.FieldSpec{Name: "meds", Source: model.SourcePath, Path: "note.meds"},
		model.FieldSpec{Name: "missing", Source: model.SourcePath, Path: "note.sections[9].text"},
	)

	claims, err := Extract(payload, schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []model.Claim{
		{Field: "hpi", Text: "Pain started two days ago."},
		{Field: "first", Text: "Chest pain"},
		{Field: "titles", Text: "CC HPI"},
		{Field: "meds", Text: "aspirin, metoprolol"},
	}
	if len(claims) != len(want) {
		t.Fatalf("expected %d claims, got %d: %+v", len(want), len(claims), claims)
	}
	for i := range want {
		if claims[i] != want[i] {
			t.Errorf("claim %d: expected %+v, got %+v", i, want[i], claims[i])
		}
	}
}

func TestExtract_TextRuleAndStringPayload(t *testing.T) {
	schema := schemaOf(model.FieldSpec{Name: "body", Source: model.SourceText, Split: model.SplitSentences})

	claims, err := Extract("Chest pain for 2 days. No fever.", schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	got := fieldsOf(claims)
	if len(got) != 2 || got[0] != "body[0]" || got[1] != "body[1]" {
		t.Fatalf("unexpected fields: %v", got)
	}
	if claims[1].Text != "No fever." {
		t.Errorf("unexpected second sentence: %q", claims[1].Text)
	}
}

func TestExtract_SplitSentences(t *testing.T) {
	schema := schemaOf(model.FieldSpec{Name: "body", Split: model.SplitSentences})
	payload := map[string]any{"body": "Chest pain for 2 days.  . \n\n Denies fever! Taking aspirin daily?"}

	claims, err := Extract(payload, schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := []model.Claim{
		{Field: "body[0]", Text: "Chest pain for 2 days."},
		{Field: "body[1]", Text: "Denies fever!"},
		{Field: "body[2]", Text: "Taking aspirin daily?"},
	}
	if len(claims) != len(want) {
		t.Fatalf("expected %d claims, got %d: %+v", len(want), len(claims), claims)
	}
	for i := range want {
		if claims[i] != want[i] {
			t.Errorf("claim %d: expected %+v, got %+v", i, want[i], claims[i])
		}
	}
}

func TestExtract_SplitWithoutSentencesIsMissing(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "body", Split: model.SplitSentences, Required: true},
		{Name: "cc"},
	}
	payload := map[string]any{"body": "  \n ", "cc": "Chest pain"}

	skip := &model.Schema{MissingFields: model.MissingSkip, Fields: fields}
	claims, err := Extract(payload, skip)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := fieldsOf(claims); len(got) != 1 || got[0] != "cc" {
		t.Errorf("expected only cc under skip, got %v", got)
	}

	empty := &model.Schema{MissingFields: model.MissingEmpty, Fields: fields}
	claims, err = Extract(payload, empty)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 2 || claims[0] != (model.Claim{Field: "body"}) {
		t.Errorf("expected an empty body claim, got %+v", claims)
	}

	strict := &model.Schema{Strict: true, MissingFields: model.MissingSkip, Fields: fields}
	if _, err := Extract(payload, strict); model.KindOf(err) != model.KindSchema {
		t.Errorf("expected schema error for a required split field with no sentences, got %v", err)
	}
}

func TestExtract_StringPayloadKeyBody(t *testing.T) {
	claims, err := Extract("Fever present", schemaOf(model.FieldSpec{Name: "body"}))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 1 || claims[0].Text != "Fever present" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestExtract_SplitLines(t *testing.T) {
	schema := schemaOf(model.FieldSpec{Name: "findings", Split: model.SplitLines})
	payload := map[string]any{"findings": "BP 120/80\n\n  HR 72  \n"}

	claims, err := Extract(payload, schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 2 || claims[1] != (model.Claim{Field: "findings[1]", Text: "HR 72"}) {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestExtract_MissingFields(t *testing.T) {
	fields := []model.FieldSpec{{Name: "a"}, {Name: "b"}}
	payload := map[string]any{"b": "present"}

	skip := &model.Schema{MissingFields: model.MissingSkip, Fields: fields}
	claims, err := Extract(payload, skip)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 1 || claims[0].Field != "b" {
		t.Errorf("expected only b under skip, got %+v", claims)
	}

	empty := &model.Schema{MissingFields: model.MissingEmpty, Fields: fields}
	claims, err = Extract(payload, empty)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 2 || claims[0] != (model.Claim{Field: "a"}) {
		t.Errorf("expected empty claim for a, got %+v", claims)
	}
}

func TestExtract_NullValueIsMissing(t *testing.T) {
	claims, err := Extract(json.RawMessage(`{"a": null}`), schemaOf(model.FieldSpec{Name: "a"}))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("expected no claims, got %+v", claims)
	}
}

func TestExtract_EmptyPayload(t *testing.T) {
	for _, payload := range []any{nil, map[string]any{}, json.RawMessage(`{}`), json.RawMessage(`null`)} {
		claims, err := Extract(payload, schemaOf(model.FieldSpec{Name: "a"}))
		if err != nil {
			t.Fatalf("Extract(%v) failed: %v", payload, err)
		}
		if len(claims) != 0 {
			t.Errorf("expected no claims for %v, got %+v", payload, claims)
		}
	}
}

func TestExtract_Strict(t *testing.T) {
	schema := &model.Schema{
		Strict:        true,
		MissingFields: model.MissingSkip,
		Fields: []model.FieldSpec{
			{Name: "cc", Required: true},
			{Name: "hpi", Source: model.SourcePath, Path: "note.hpi"},
		},
	}

	if _, err := Extract(map[string]any{"cc": "x", "note": map[string]any{"hpi": "y"}}, schema); err != nil {
		t.Errorf("expected declared keys to pass, got %v", err)
	}

	_, err := Extract(map[string]any{"cc": "x", "extra": "y"}, schema)
	if model.KindOf(err) != model.KindSchema {
		t.Fatalf("expected schema error for unknown key, got %v", err)
	}
	if model.AsError(err).Field != "extra" {
		t.Errorf("expected error on field extra, got %q", model.AsError(err).Field)
	}

	_, err = Extract(map[string]any{"note": map[string]any{"hpi": "y"}}, schema)
	if model.KindOf(err) != model.KindSchema {
		t.Errorf("expected schema error for missing required field, got %v", err)
	}
}

func TestExtract_StrictWithTextRule(t *testing.T) {
	schema := &model.Schema{
		Strict: true,
		Fields: []model.FieldSpec{{Name: "all", Source: model.SourceText}},
	}
	claims, err := Extract(map[string]any{"b": "second", "a": "first"}, schema)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 1 || claims[0].Text != "first\nsecond" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestExtract_InvalidSchema(t *testing.T) {
	if _, err := Extract(map[string]any{}, &model.Schema{}); model.KindOf(err) != model.KindSchema {
		t.Errorf("expected schema error for no fields, got %v", err)
	}
	if _, err := Extract(map[string]any{}, nil); model.KindOf(err) != model.KindSchema {
		t.Errorf("expected schema error for nil schema, got %v", err)
	}

	bad := schemaOf(model.FieldSpec{Name: "x", Source: model.SourcePath, Path: "a[oops"})
	if _, err := Extract(map[string]any{}, bad); model.KindOf(err) != model.KindSchema {
		t.Errorf("expected schema error for bad path, got %v", err)
	}
}

func TestExtract_MalformedPayload(t *testing.T) {
	_, err := Extract([]byte(`{"a": `), schemaOf(model.FieldSpec{Name: "a"}))
	if model.KindOf(err) != model.KindInput {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  text ", "text"},
		{true, "true"},
		{2.5, "2.5"},
		{54.0, "54"},
		{[]any{"a", 1.0, nil, "b"}, "a, 1, b"},
		{map[string]any{"z": "last", "a": 1.0}, "a: 1; z: last"},
		{map[any]any{"k": "v"}, "k: v"},
	}
	for _, tt := range tests {
		if got := Flatten(tt.in); got != tt.want {
			t.Errorf("Flatten(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
