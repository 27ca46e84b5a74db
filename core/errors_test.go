package core_test

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/peerly/core"
)

func TestValidationError(t *testing.T) {
	errBad := errors.New("bad review")
	scores := core.FieldError{Field: "scores", Error: "this field is required"}
	status := core.FieldError{Field: "status", Error: "unknown status"}

	tests := []struct {
		name        string
		err         core.ValidationError
		wantMessage string
		wantFields  map[string]string
	}{
		{name: "sentinel", err: core.ValidationError{Err: errBad, Fields: []core.FieldError{scores}}, wantMessage: "bad review", wantFields: map[string]string{"scores": "this field is required"}},
		{name: "fields only", err: core.ValidationError{Fields: []core.FieldError{scores, status}}, wantMessage: "scores: this field is required; status: unknown status", wantFields: map[string]string{"scores": "this field is required", "status": "unknown status"}},
		{name: "empty", err: core.ValidationError{}, wantMessage: "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.err.Error())
			assert.Equal(t, tt.wantFields, tt.err.FieldMap())
		})
	}

	err := fmt.Errorf("saving review: %w", core.NewValidationError(errBad, scores))
	assert.True(t, errors.Is(err, errBad))
	var vErr *core.ValidationError
	if assert.True(t, errors.As(err, &vErr)) {
		assert.Equal(t, []core.FieldError{scores}, vErr.Fields)
	}
}

func TestIsShutdown(t *testing.T) {
	shutdown := core.NewShutdownError("database is shutting down")
	assert.Equal(t, "shutdown: database is shutting down", shutdown.Error())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "plain", err: shutdown, want: true},
		{name: "wrapped", err: errors.Wrap(shutdown, "pq: terminating connection"), want: true},
		{name: "wrapped with %w", err: fmt.Errorf("listing reviews: %w", shutdown), want: true},
		{name: "other error", err: errors.New("connection refused"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.IsShutdown(tt.err))
		})
	}
}
