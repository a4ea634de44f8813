package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer", "minimum": 0}
	}
}`

func TestValidateJSONString(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantError bool
	}{
		{"valid", `{"name": "Ada", "age": 36}`, false},
		{"missing field", `{"age": 36}`, true},
		{"wrong type", `{"name": "Ada", "age": "old"}`, true},
		{"below minimum", `{"name": "Ada", "age": -1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONString(personSchema, tt.doc)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			validationErr, ok := err.(*ValidationError)
			require.True(t, ok, "error should be ValidationError type")
			assert.Greater(t, len(validationErr.Errors), 0)
		})
	}
}

func TestValidateJSONString_BadSchema(t *testing.T) {
	err := ValidateJSONString(`{"type": 12}`, `{}`)
	require.Error(t, err)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidator_UnknownSchema(t *testing.T) {
	err := NewValidator().Validate("does_not_exist", []byte(`{}`))
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.NotNil(t, loadErr.Unwrap())
}

func TestValidator_MalformedDocument(t *testing.T) {
	err := NewValidator().Validate("interview_start", []byte(`{not json`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "interview_start", validationErr.Schema)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestValidator_FieldPaths(t *testing.T) {
	err := Validate("questions", []byte(`{"questions": [{"question": "ok"}, {"options": []}]}`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.NotEmpty(t, validationErr.Errors)
	assert.Contains(t, validationErr.Errors[0].Field, "questions.1")
}

func TestValidator_ConcurrentUse(t *testing.T) {
	v := NewValidator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.Validate("transcription", []byte(`{"transcript": "hi"}`)))
		}()
	}
	wg.Wait()
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"version": 2, "step": "upload"}`), 0o644))
	assert.NoError(t, ValidateFile("wizard_state", good))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"step": "upload"}`), 0o644))
	assert.Error(t, ValidateFile("wizard_state", bad))

	err := ValidateFile("wizard_state", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
