package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type signupPayload struct {
	Username string `json:"username" validate:"required,identifier"`
	Password string `json:"password" validate:"required,min=6"`
}

type commandPayload struct {
	Command string `json:"command" validate:"required,oneof=open close"`
}

func TestValidateStructSuccess(t *testing.T) {
	require.NoError(t, ValidateStruct(signupPayload{Username: "student", Password: "secret"}))
	require.NoError(t, ValidateStruct(commandPayload{Command: "open"}))
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(signupPayload{Username: "../etc", Password: "x"})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 2)

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "identifier", fields["username"])
	require.Equal(t, "min", fields["password"])

	err = ValidateStruct(commandPayload{Command: "explode"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "command failed on oneof")
}

func TestIsIdentifier(t *testing.T) {
	require.True(t, IsIdentifier("demo123"))
	require.True(t, IsIdentifier("box_01.kitchen"))
	require.False(t, IsIdentifier(""))
	require.False(t, IsIdentifier("a/b"))
	require.False(t, IsIdentifier(".hidden"))
}
