package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	MessageID string `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=16"`
	Limit     int    `json:"limit" validate:"gte=1,lte=200"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		MessageID: "msg-1",
		Emoji:     "👍",
		Limit:     50,
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		MessageID: "",
		Emoji:     "",
		Limit:     0,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	if !FailedOn(err, "message_id", "required") {
		t.Fatal("expected message_id field to be present in validation errors")
	}
	if !FailedOn(err, "limit", "") {
		t.Fatal("expected limit field to be present in validation errors")
	}
	if FailedOn(err, "unknown", "") {
		t.Fatal("did not expect unknown field to match")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "general"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"roomid"`
	}

	if err := ValidateStruct(custom{Value: "general"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
