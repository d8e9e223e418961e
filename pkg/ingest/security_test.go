package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/aqakit/brain/pkg/utdl"
)

func TestDetectSecurityBearer(t *testing.T) {
	spec := parseUserService(t)
	sec := spec.Security

	if !sec.HasSecurity {
		t.Fatal("bearer scheme not detected")
	}
	if sec.PrimaryScheme == nil || sec.PrimaryScheme.Type != SecurityHTTPBearer {
		t.Fatalf("primary = %+v", sec.PrimaryScheme)
	}
	if sec.PrimaryScheme.Details["bearer_format"] != "JWT" {
		t.Errorf("bearer format = %q", sec.PrimaryScheme.Details["bearer_format"])
	}
	if len(sec.GlobalRequirements) != 1 || sec.GlobalRequirements[0].SchemeName != "bearerAuth" {
		t.Errorf("global requirements = %+v", sec.GlobalRequirements)
	}
}

func TestDetectSecuritySchemeKinds(t *testing.T) {
	doc := `{
  "openapi": "3.0.0",
  "info": {"title": "Mixed", "version": "1.0"},
  "paths": {},
  "components": {
    "securitySchemes": {
      "keyAuth": {"type": "apiKey", "in": "header", "name": "X-Api-Token"},
      "basicAuth": {"type": "http", "scheme": "basic"},
      "oauth": {
        "type": "oauth2",
        "flows": {
          "password": {"tokenUrl": "/oauth/token", "scopes": {"read": "read access"}}
        }
      }
    }
  }
}`
	spec, err := ParseBytes(context.Background(), []byte(doc), ParseOptions{})
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	sec := spec.Security

	if got := sec.Schemes["keyAuth"]; got.Type != SecurityAPIKey ||
		got.Details["param_name"] != "X-Api-Token" || got.Details["location"] != "header" {
		t.Errorf("keyAuth = %+v", got)
	}
	if got := sec.Schemes["basicAuth"]; got.Type != SecurityHTTPBasic {
		t.Errorf("basicAuth = %+v", got)
	}
	if got := sec.Schemes["oauth"]; got.Type != SecurityOAuth2Password ||
		got.Details["token_url"] != "/oauth/token" || got.Details["scopes"] != "read" {
		t.Errorf("oauth = %+v", got)
	}

	// OAuth2 password outranks API key and basic.
	if sec.PrimaryScheme == nil || sec.PrimaryScheme.Type != SecurityOAuth2Password {
		t.Errorf("primary = %+v", sec.PrimaryScheme)
	}
}

func TestGenerateAuthStepsBearer(t *testing.T) {
	spec := parseUserService(t)
	auth := GenerateAuthSteps(spec.Security, AuthOptions{})

	if len(auth) != 1 || auth[0].Step == nil {
		t.Fatalf("auth = %+v", auth)
	}
	step := auth[0].Step
	if step.ID != "auth-login" || step.Params["method"] != "POST" || step.Params["path"] != "/auth/login" {
		t.Errorf("login step = %+v", step)
	}
	if len(step.Extract) == 0 || step.Extract[0].Target != "access_token" ||
		step.Extract[0].Path != "$.access_token" {
		t.Errorf("extractions = %+v", step.Extract)
	}
	if auth[0].UsageHeader["Authorization"] != "Bearer ${access_token}" {
		t.Errorf("usage header = %+v", auth[0].UsageHeader)
	}
}

func TestGenerateAuthStepsBearerOverrides(t *testing.T) {
	spec := parseUserService(t)
	auth := GenerateAuthSteps(spec.Security, AuthOptions{
		LoginEndpoint: "/api/v2/session",
		Credentials:   map[string]string{"username": "qa", "password": "secret"},
	})
	step := auth[0].Step
	if step.Params["path"] != "/api/v2/session" {
		t.Errorf("path = %v", step.Params["path"])
	}
	body := step.Params["body"].(map[string]interface{})
	if body["username"] != "qa" || body["password"] != "secret" {
		t.Errorf("body = %v", body)
	}
}

func TestGenerateAuthStepsAPIKey(t *testing.T) {
	scheme := SecurityScheme{
		Name: "keyAuth",
		Type: SecurityAPIKey,
		Details: map[string]string{
			"location":   "header",
			"param_name": "X-Api-Token",
		},
	}
	analysis := SecurityAnalysis{
		Schemes:       map[string]SecurityScheme{"keyAuth": scheme},
		HasSecurity:   true,
		PrimaryScheme: &scheme,
	}

	auth := GenerateAuthSteps(analysis, AuthOptions{})
	if len(auth) != 1 {
		t.Fatalf("auth = %+v", auth)
	}
	if auth[0].Step != nil {
		t.Error("api key scheme needs no login step")
	}
	if auth[0].UsageHeader["X-Api-Token"] != "${API_KEY}" {
		t.Errorf("usage header = %+v", auth[0].UsageHeader)
	}
}

func TestGenerateAuthStepsOAuth2ClientCredentials(t *testing.T) {
	scheme := SecurityScheme{
		Name:    "oauth",
		Type:    SecurityOAuth2ClientCredentials,
		Details: map[string]string{"token_url": "/token"},
	}
	analysis := SecurityAnalysis{
		Schemes:       map[string]SecurityScheme{"oauth": scheme},
		HasSecurity:   true,
		PrimaryScheme: &scheme,
	}

	auth := GenerateAuthSteps(analysis, AuthOptions{
		Credentials: map[string]string{"scope": "read write"},
	})
	step := auth[0].Step
	if step == nil || step.Params["path"] != "/token" {
		t.Fatalf("step = %+v", step)
	}
	body := step.Params["body"].(map[string]interface{})
	if body["grant_type"] != "client_credentials" || body["scope"] != "read write" {
		t.Errorf("body = %v", body)
	}
	headers := step.Params["headers"].(map[string]interface{})
	if headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Errorf("headers = %v", headers)
	}
}

func TestGenerateAuthStepsNoSecurity(t *testing.T) {
	if auth := GenerateAuthSteps(SecurityAnalysis{}, AuthOptions{}); auth != nil {
		t.Errorf("auth = %+v", auth)
	}
}

func TestInjectAuth(t *testing.T) {
	steps := []utdl.Step{
		{ID: "s1", Action: utdl.ActionHTTPRequest,
			Params: map[string]interface{}{
				"method":  "GET",
				"path":    "/users",
				"headers": map[string]interface{}{"Accept": "application/json"},
			}},
		{ID: "s2", Action: utdl.ActionWait},
	}
	header := map[string]string{"Authorization": "Bearer ${access_token}"}

	out := InjectAuth(steps, header)
	headers := out[0].Params["headers"].(map[string]interface{})
	if headers["Authorization"] != "Bearer ${access_token}" || headers["Accept"] != "application/json" {
		t.Errorf("headers = %v", headers)
	}
	if out[1].Params != nil {
		t.Errorf("wait step params = %v", out[1].Params)
	}

	// Originals are untouched.
	original := steps[0].Params["headers"].(map[string]interface{})
	if _, ok := original["Authorization"]; ok {
		t.Error("input steps must not be modified")
	}
}

func TestSecurityText(t *testing.T) {
	if got := SecurityText(SecurityAnalysis{}); got != "The API requires no authentication." {
		t.Errorf("no-security text = %q", got)
	}

	spec := parseUserService(t)
	text := SecurityText(spec.Security)
	for _, want := range []string{"API security:", "bearerAuth: http_bearer", "Global requirements:"} {
		if !strings.Contains(text, want) {
			t.Errorf("security text missing %q:\n%s", want, text)
		}
	}
}
