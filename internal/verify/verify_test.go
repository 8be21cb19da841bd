package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

func ptr[T any](v T) *T { return &v }

func testDoc() providers.Upload {
	return providers.StaticUpload{Name: "id.png", Type: "image/png", Data: []byte("img")}
}

func TestVerifyEmptyInput(t *testing.T) {
	mock := providers.NewMockService()
	c := NewClient(mock, nil)

	tests := []struct {
		name      string
		doc       providers.Upload
		submitted map[schema.FieldID]string
	}{
		{"nil document", nil, map[schema.FieldID]string{"name": "John"}},
		{"empty document", providers.StaticUpload{Name: "x.png"}, map[schema.FieldID]string{"name": "John"}},
		{"no fields", testDoc(), nil},
		{"only blank values", testDoc(), map[schema.FieldID]string{"name": "  ", "age": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(context.Background(), tt.doc, tt.submitted)
			if !errors.Is(err, ErrEmptyInput) {
				t.Errorf("Verify() error = %v, want ErrEmptyInput", err)
			}
		})
	}
	if n := mock.RequestCount(); n != 0 {
		t.Errorf("service called %d times, want 0", n)
	}
}

func TestVerifyCompleteness(t *testing.T) {
	mock := providers.NewMockService()
	var sent map[string]string
	mock.VerifyFunc = func(_ context.Context, _ providers.Upload, submitted map[string]string) (*providers.VerifyResult, error) {
		sent = submitted
		return &providers.VerifyResult{Fields: map[string]providers.VerifiedField{
			"Name":    {Extracted: ptr("John"), Status: "match", SimilarityScore: ptr(0.98)},
			"age":     {Extracted: ptr("31"), Status: "PARTIAL_MATCH", Confidence: ptr(0.7)},
			"country": {Status: "NOT_FOUND"},
			"unknown": {Status: "MATCH"},
		}}, nil
	}
	c := NewClient(mock, nil)

	submitted := map[schema.FieldID]string{
		"name":    "John",
		"age":     "30",
		"country": "India",
		"email":   "j@example.com",
		"phone":   "",
	}
	out, err := c.Verify(context.Background(), testDoc(), submitted)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if _, ok := sent["phone"]; ok {
		t.Error("blank value should not be sent")
	}
	if len(sent) != 4 {
		t.Errorf("sent %d fields, want 4", len(sent))
	}
	if len(out.Fields) != len(submitted) {
		t.Fatalf("got %d outcomes, want %d", len(out.Fields), len(submitted))
	}
	if _, ok := out.Fields["unknown"]; ok {
		t.Error("response-only field should be ignored")
	}

	want := map[schema.FieldID]Status{
		"name":    StatusMatch,
		"age":     StatusMismatch,
		"country": StatusNotFound,
		"email":   StatusNotVerified,
		"phone":   StatusNotVerified,
	}
	for id, status := range want {
		got := out.Fields[id]
		if got.Status != status {
			t.Errorf("%s status = %s, want %s", id, got.Status, status)
		}
		if got.Submitted == nil || *got.Submitted != submitted[id] {
			t.Errorf("%s submitted = %v, want %q", id, got.Submitted, submitted[id])
		}
	}

	if s := out.Fields["age"].SimilarityScore; s == nil || *s != 0.7 {
		t.Errorf("age score = %v, want confidence fallback 0.7", s)
	}
	if s := out.Fields["email"].SimilarityScore; s == nil || *s != 0 {
		t.Errorf("email score = %v, want 0", s)
	}
	if e := out.Fields["name"].Extracted; e == nil || *e != "John" {
		t.Errorf("name extracted = %v", e)
	}
}

func TestVerifyServiceFailure(t *testing.T) {
	mock := providers.NewMockService()
	mock.VerifyFunc = func(context.Context, providers.Upload, map[string]string) (*providers.VerifyResult, error) {
		return nil, providers.FailWith("verify", 500, "model not loaded")
	}
	c := NewClient(mock, nil)

	_, err := c.Verify(context.Background(), testDoc(), map[schema.FieldID]string{"name": "John"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	var terr *providers.TransportError
	if !errors.As(err, &terr) || terr.StatusCode != 500 {
		t.Errorf("error should wrap the transport error, got %v", err)
	}
}

func TestVerifyNilResponse(t *testing.T) {
	mock := providers.NewMockService()
	mock.VerifyFunc = func(context.Context, providers.Upload, map[string]string) (*providers.VerifyResult, error) {
		return nil, nil
	}
	c := NewClient(mock, nil)

	_, err := c.Verify(context.Background(), testDoc(), map[schema.FieldID]string{"name": "John"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *Error", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"MATCH":         StatusMatch,
		" match ":       StatusMatch,
		"MISMATCH":      StatusMismatch,
		"partial_match": StatusMismatch,
		"NOT_FOUND":     StatusNotFound,
		"NOT_VERIFIED":  StatusNotVerified,
		"":              StatusNotVerified,
		"UNCERTAIN":     StatusNotVerified,
	}
	for in, want := range tests {
		if got := normalizeStatus(in); got != want {
			t.Errorf("normalizeStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNormalizeFoldedKeys(t *testing.T) {
	resp := &providers.VerifyResult{Fields: map[string]providers.VerifiedField{
		"Name": {Status: "MATCH", SimilarityScore: ptr(1.0)},
		"name": {Status: "MISMATCH", SimilarityScore: ptr(0.2)},
		"NAME": {Status: "NOT_FOUND"},
	}}
	submitted := map[string]string{"nAmE": "John"}

	// Map iteration order varies between runs; the winner must not.
	for i := 0; i < 50; i++ {
		got := Normalize(submitted, resp).Fields["nAmE"]
		if got.Status != StatusNotFound {
			t.Fatalf("run %d: status = %s, want %s from the first sorted key", i, got.Status, StatusNotFound)
		}
	}
}

func TestOutcomeSummary(t *testing.T) {
	outcome := func(results ...FieldResult) *Outcome {
		o := &Outcome{Fields: map[schema.FieldID]FieldResult{}}
		for i, r := range results {
			o.Fields[schema.FieldID(rune('a'+i))] = r
		}
		return o
	}
	match := FieldResult{Status: StatusMatch, SimilarityScore: ptr(1.0)}
	softMiss := FieldResult{Status: StatusMismatch, SimilarityScore: ptr(0.6)}
	hardMiss := FieldResult{Status: StatusMismatch, SimilarityScore: ptr(0.2)}
	notFound := FieldResult{Status: StatusNotFound}
	skipped := FieldResult{Status: StatusNotVerified, SimilarityScore: ptr(0.0)}

	t.Run("counts and rate", func(t *testing.T) {
		s := outcome(match, match, softMiss, notFound, skipped).Summary()
		if s.Total != 5 || s.Matched != 2 || s.Mismatched != 1 || s.NotFound != 1 || s.NotVerified != 1 {
			t.Errorf("Summary() = %+v", s)
		}
		if s.MatchRate != 0.5 {
			t.Errorf("MatchRate = %v, want 0.5", s.MatchRate)
		}
		if s.Passed {
			t.Error("50% match rate should not pass")
		}
	})

	t.Run("passes with soft mismatch", func(t *testing.T) {
		o := outcome(match, match, match, softMiss, skipped)
		if !o.Passed() {
			t.Errorf("expected pass, summary %+v", o.Summary())
		}
	})

	t.Run("critical mismatch fails", func(t *testing.T) {
		o := outcome(match, match, match, match, hardMiss)
		if o.Passed() {
			t.Error("mismatch below 0.5 should fail")
		}
	})

	t.Run("nothing compared", func(t *testing.T) {
		s := outcome(skipped).Summary()
		if s.MatchRate != 0 || s.Passed {
			t.Errorf("Summary() = %+v", s)
		}
	})
}

func TestOutcomeFieldIDs(t *testing.T) {
	o := &Outcome{Fields: map[schema.FieldID]FieldResult{"name": {}, "age": {}, "email": {}}}
	got := o.FieldIDs()
	want := []schema.FieldID{"age", "email", "name"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FieldIDs() = %v, want %v", got, want)
		}
	}
}
