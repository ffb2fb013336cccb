package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type subscriptionPayload struct {
	Endpoint string `json:"endpoint" validate:"required,push_endpoint"`
	P256dh   string `json:"p256dh" validate:"required"`
	Auth     string `json:"auth" validate:"required,max=64"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := subscriptionPayload{
		Endpoint: "https://fcm.googleapis.com/fcm/send/abc",
		P256dh:   "BNc...",
		Auth:     "tBHI",
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailuresUseJSONNames(t *testing.T) {
	payload := subscriptionPayload{
		Endpoint: "ftp://push.example.com",
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)

	tags := map[string]string{}
	for _, v := range vErrs {
		tags[v.Field] = v.Tag
	}
	require.Equal(t, "push_endpoint", tags["endpoint"])
	require.Equal(t, "required", tags["p256dh"])
	require.Equal(t, "required", tags["auth"])
}

func TestIsPushEndpoint(t *testing.T) {
	cases := map[string]bool{
		"https://updates.push.services.mozilla.com/wpush/v2/x": true,
		"http://localhost:9000/push":                           true,
		"http://127.0.0.1:9000/push":                           true,
		"http://push.example.com/abc":                          false,
		"/relative/path":                                       false,
		"":                                                     false,
	}
	for raw, want := range cases {
		require.Equal(t, want, IsPushEndpoint(raw), raw)
	}
}

func TestRegisterValidation(t *testing.T) {
	type payload struct {
		Value string `validate:"always_fail"`
	}

	require.NoError(t, RegisterValidation("always_fail", func(fl validator.FieldLevel) bool {
		return false
	}))

	require.Error(t, ValidateStruct(payload{Value: "x"}))
}
