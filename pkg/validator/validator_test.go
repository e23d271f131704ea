package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type input struct {
	Text string  `json:"text" validate:"required,max=5"`
	Time float64 `json:"current_time" validate:"min=0"`
	Skip string  `json:"-"`
}

func TestStruct(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(input{Text: "hi", Time: 1}))

	err := v.Struct(input{Text: "", Time: -1})
	var verrs Errors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "text", verrs[0].Field)
	assert.Equal(t, "REQUIRED", verrs[0].Code)
	assert.Equal(t, "current_time", verrs[1].Field)
	assert.Equal(t, "MIN", verrs[1].Code)
	assert.Equal(t, "current_time must be at least 0", verrs[1].Message)

	err = v.Struct(input{Text: "toolong"})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "text must not exceed 5 characters", verrs[0].Message)
	assert.Contains(t, err.Error(), "validation failed")
}
