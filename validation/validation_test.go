package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/wasmfetch/errors"
)

type serverConfig struct {
	Addr        string `json:"addr" validate:"required,hostname_port"`
	Redirect    string `json:"redirect" validate:"omitempty,oneof=follow manual"`
	MaxChunks   int    `json:"max_chunks" validate:"gte=1,lte=1000"`
	UpstreamURL string `json:"upstream_url" validate:"omitempty,http_url"`
}

func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("code = %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("fields detail = %#v", appErr.Details["fields"])
	}
	return fields
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    serverConfig
		fields map[string]string
	}{
		{
			name: "valid",
			cfg:  serverConfig{Addr: "localhost:8080", Redirect: "manual", MaxChunks: 10},
		},
		{
			name:   "missing addr",
			cfg:    serverConfig{MaxChunks: 1},
			fields: map[string]string{"addr": "is required"},
		},
		{
			name:   "bad redirect",
			cfg:    serverConfig{Addr: ":8080", Redirect: "error", MaxChunks: 1},
			fields: map[string]string{"redirect": "must be one of: follow, manual"},
		},
		{
			name: "limits",
			cfg:  serverConfig{Addr: ":8080", MaxChunks: 5000, UpstreamURL: "not a url"},
			fields: map[string]string{
				"max_chunks":   "must be 1000 or less",
				"upstream_url": "must be a valid URL",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			got := fieldErrors(t, err)
			if len(got) != len(tt.fields) {
				t.Fatalf("fields = %v, want %v", got, tt.fields)
			}
			for _, fe := range got {
				if want, ok := tt.fields[fe.Field]; !ok || want != fe.Message {
					t.Errorf("%s: %q, want %q", fe.Field, fe.Message, want)
				}
			}
		})
	}
}

func TestValidateNonStruct(t *testing.T) {
	if err := Validate("nope"); err == nil {
		t.Error("expected an error for a non-struct")
	}
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Validator)
		want  []string
	}{
		{"all good", func(v *Validator) {
			v.Required("to", "/echo").Range("n", 3, 1, 10).OneOf("mode", "cors", "cors", "no-cors").OptionalUUID("id", "")
		}, nil},
		{"required", func(v *Validator) { v.Required("to", "  ") }, []string{"to: is required"}},
		{"range", func(v *Validator) { v.Range("n", 0, 1, 10) }, []string{"n: must be between 1 and 10"}},
		{"one of", func(v *Validator) { v.OneOf("mode", "x", "a", "b") }, []string{"mode: must be one of: a, b"}},
		{"uuid", func(v *Validator) { v.OptionalUUID("id", "123") }, []string{"id: must be a valid UUID"}},
		{"custom", func(v *Validator) { v.Custom(false, "delay", "must be positive") }, []string{"delay: must be positive"}},
		{"several", func(v *Validator) {
			v.Required("to", "").Range("n", 99, 1, 10)
		}, []string{"to: is required", "n: must be between 1 and 10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			tt.build(v)
			err := v.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			msg := err.Error()
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("%q missing %q", msg, w)
				}
			}
			if got := len(fieldErrors(t, err)); got != len(tt.want) {
				t.Errorf("got %d field errors, want %d", got, len(tt.want))
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"UpstreamURL": "upstream_u_r_l",
		"MaxChunks":   "max_chunks",
		"addr":        "addr",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
