package jsonschema

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": { "type": "string" },
		"age": { "type": "integer", "minimum": 0 }
	},
	"required": ["name"]
}`

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile(personSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name       string
		json       string
		wantValid  bool
		wantJSON   bool
		wantErrors int
		contains   string
	}{
		{name: "valid", json: `{"name": "John", "age": 30}`, wantValid: true},
		{name: "missing required", json: `{"age": 30}`, wantErrors: 1, contains: "name"},
		{name: "wrong type", json: `{"name": "John", "age": "thirty"}`, wantErrors: 1, contains: "/age"},
		{name: "two violations", json: `{"name": 5, "age": -1}`, wantErrors: 2},
		{name: "not json", json: `{"name":`, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.json)
			if tt.wantValid {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if tt.wantJSON {
				if !errors.Is(err, ErrInvalidJSON) {
					t.Errorf("Validate() error = %v, want ErrInvalidJSON", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error type = %T, want ValidationErrors", err)
			}
			if len(verrs) != tt.wantErrors {
				t.Errorf("len(errors) = %d, want %d (%v)", len(verrs), tt.wantErrors, verrs)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.contains)
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	tests := []string{
		`{"type": }`,
		`not json`,
	}
	for _, schema := range tests {
		if _, err := Compile(schema); err == nil {
			t.Errorf("Compile(%q) error = nil, want error", schema)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(`{"name": "x"}`, personSchema); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
	if err := Validate(`{}`, personSchema); err == nil {
		t.Error("Validate() error = nil, want error")
	}
	if err := Validate(`{}`, `{"type": }`); err == nil || !strings.Contains(err.Error(), "invalid schema") {
		t.Errorf("Validate() error = %v, want invalid schema", err)
	}
}

func TestSchema_ConcurrentValidate(t *testing.T) {
	schema, err := Compile(personSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := schema.Validate(`{"name": "x"}`); err != nil {
					t.Errorf("Validate() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestValidationErrors_Error(t *testing.T) {
	if got := (ValidationErrors{}).Error(); got != "" {
		t.Errorf("Error() = %q, want empty", got)
	}
	got := ValidationErrors{errors.New("a"), errors.New("b")}.Error()
	if got != "a; b" {
		t.Errorf("Error() = %q, want %q", got, "a; b")
	}
}
