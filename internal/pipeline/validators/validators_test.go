package validators

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

type createPostCommand struct {
	Title  string   `json:"title" validate:"required,min=3,max=120"`
	Body   string   `json:"body" validate:"required"`
	Author string   `json:"author" validate:"omitempty,email"`
	Tags   []string `json:"tags" validate:"max=3"`
}

func TestStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cmd        createPostCommand
		wantFields []string
	}{
		{
			name: "valid",
			cmd:  createPostCommand{Title: "Hello", Body: "world"},
		},
		{
			name:       "two failures reported together",
			cmd:        createPostCommand{Title: "Hi"},
			wantFields: []string{"title", "body"},
		},
		{
			name:       "email and tags",
			cmd:        createPostCommand{Title: "Hello", Body: "b", Author: "nope", Tags: []string{"a", "b", "c", "d"}},
			wantFields: []string{"author", "tags"},
		},
	}

	v := Struct[createPostCommand]()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			failures, err := v.Validate(context.Background(), tt.cmd)
			require.NoError(t, err)

			fields := make([]string, 0, len(failures))
			for _, f := range failures {
				fields = append(fields, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestStruct_Messages(t *testing.T) {
	t.Parallel()

	failures, err := Struct[createPostCommand]().Validate(context.Background(), createPostCommand{Title: "Hi", Body: "x"})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, util.FieldError{
		Field:          "title",
		Message:        "must be at least 3 characters long",
		AttemptedValue: "Hi",
	}, failures[0])
}

func TestStruct_NonStructIsError(t *testing.T) {
	t.Parallel()

	_, err := Struct[int]().Validate(context.Background(), 5)
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	t.Parallel()

	v := Func("title",
		func(c createPostCommand) any { return c.Title },
		func(c createPostCommand) string {
			if c.Title == "forbidden" {
				return "is not allowed"
			}
			return ""
		})

	failures, err := v.Validate(context.Background(), createPostCommand{Title: "ok"})
	require.NoError(t, err)
	assert.Empty(t, failures)

	failures, err = v.Validate(context.Background(), createPostCommand{Title: "forbidden"})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "forbidden", failures[0].AttemptedValue)
}

func TestStruct_InPipeline(t *testing.T) {
	t.Parallel()

	registry := pipeline.NewValidatorRegistry()
	pipeline.RegisterValidator(registry, Struct[createPostCommand]())
	exec := pipeline.NewExecutor(pipeline.WithValidators(registry))
	p := pipeline.Build(exec, func(context.Context, createPostCommand) (string, error) { return "id-1", nil })

	_, err := p.Execute(context.Background(), createPostCommand{})
	var verr *util.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Failures, 2)
	assert.Equal(t, 400, util.HTTPStatus(err))

	id, err := p.Execute(context.Background(), createPostCommand{Title: "Hello", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
}
