package httpclient

import (
	"net/http"

	"github.com/kbukum/wasmfetch/validation"
)

// AuthType identifies the authentication method.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
	// AuthCustom runs Apply on the request. It cannot be set from a file.
	AuthCustom AuthType = "custom"
)

// AuthConfig configures request authentication. Credentials travel as
// headers or query parameters; the host's own credential handling is not
// used.
type AuthConfig struct {
	Type AuthType `yaml:"type" mapstructure:"type" json:"type"`
	// Token is the bearer token.
	Token string `yaml:"token" mapstructure:"token" json:"-"`
	// Username and Password are the basic auth credentials.
	Username string `yaml:"username" mapstructure:"username" json:"username"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
	// Key is the API key value.
	Key string `yaml:"key" mapstructure:"key" json:"-"`
	// In places the API key: "header" (default) or "query".
	In string `yaml:"in" mapstructure:"in" json:"in"`
	// Name is the header or query parameter name. Defaults to "X-API-Key".
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	// Apply modifies the request for AuthCustom.
	Apply func(*http.Request) `yaml:"-" mapstructure:"-" json:"-"`
}

// BearerAuth creates a bearer token auth config.
func BearerAuth(token string) *AuthConfig {
	return &AuthConfig{Type: AuthBearer, Token: token}
}

// BasicAuth creates a basic auth config.
func BasicAuth(username, password string) *AuthConfig {
	return &AuthConfig{Type: AuthBasic, Username: username, Password: password}
}

// APIKeyAuth creates an API key auth config sent via header.
func APIKeyAuth(key string) *AuthConfig {
	return &AuthConfig{Type: AuthAPIKey, Key: key, In: "header", Name: "X-API-Key"}
}

// APIKeyAuthQuery creates an API key auth config sent via query parameter.
func APIKeyAuthQuery(key, paramName string) *AuthConfig {
	return &AuthConfig{Type: AuthAPIKey, Key: key, In: "query", Name: paramName}
}

// CustomAuth creates a custom auth config with a request modifier function.
func CustomAuth(fn func(*http.Request)) *AuthConfig {
	return &AuthConfig{Type: AuthCustom, Apply: fn}
}

// Validate checks that the fields the type needs are set.
func (a *AuthConfig) Validate() error {
	v := validation.New().
		OneOf("auth.type", string(a.Type), "", string(AuthBearer), string(AuthBasic), string(AuthAPIKey), string(AuthCustom))
	switch a.Type {
	case AuthBearer:
		v.Required("auth.token", a.Token)
	case AuthBasic:
		v.Required("auth.username", a.Username)
	case AuthAPIKey:
		v.Required("auth.key", a.Key).
			OneOf("auth.in", a.In, "", "header", "query")
	case AuthCustom:
		v.Custom(a.Apply != nil, "auth.apply", "is required for custom auth")
	}
	return v.Validate()
}

func (a *AuthConfig) apply(req *http.Request) {
	if a == nil {
		return
	}
	switch a.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case AuthBasic:
		req.SetBasicAuth(a.Username, a.Password)
	case AuthAPIKey:
		name := a.Name
		if name == "" {
			name = "X-API-Key"
		}
		if a.In == "query" {
			q := req.URL.Query()
			q.Set(name, a.Key)
			req.URL.RawQuery = q.Encode()
		} else {
			req.Header.Set(name, a.Key)
		}
	case AuthCustom:
		if a.Apply != nil {
			a.Apply(req)
		}
	}
}
