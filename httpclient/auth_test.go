package httpclient

import (
	"net/http"
	"testing"
)

func TestAuthConfig_Apply(t *testing.T) {
	tests := []struct {
		name   string
		auth   *AuthConfig
		header string
		want   string
		query  string
	}{
		{name: "none", auth: nil, header: "Authorization", want: ""},
		{name: "bearer", auth: BearerAuth("tok"), header: "Authorization", want: "Bearer tok"},
		{name: "basic", auth: BasicAuth("u", "p"), header: "Authorization", want: "Basic dTpw"},
		{name: "api key header", auth: APIKeyAuth("k"), header: "X-API-Key", want: "k"},
		{name: "api key query", auth: APIKeyAuthQuery("k", "key"), query: "key=k"},
		{name: "custom", auth: CustomAuth(func(r *http.Request) { r.Header.Set("X-Sig", "s") }), header: "X-Sig", want: "s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "https://example.test/", nil)
			tt.auth.apply(req)
			if tt.header != "" && req.Header.Get(tt.header) != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, req.Header.Get(tt.header), tt.want)
			}
			if req.URL.RawQuery != tt.query {
				t.Errorf("query = %q, want %q", req.URL.RawQuery, tt.query)
			}
		})
	}
}

func TestAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		auth    *AuthConfig
		wantErr bool
	}{
		{"bearer", BearerAuth("t"), false},
		{"bearer empty", BearerAuth(""), true},
		{"basic no user", BasicAuth("", "p"), true},
		{"api key empty", APIKeyAuth(""), true},
		{"custom without func", &AuthConfig{Type: AuthCustom}, true},
		{"unknown", &AuthConfig{Type: "digest"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.auth.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
