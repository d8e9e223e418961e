package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/aqakit/brain/pkg/utdl"
)

// SecurityType classifies an OpenAPI security scheme.
type SecurityType string

const (
	SecurityAPIKey                  SecurityType = "api_key"
	SecurityHTTPBearer              SecurityType = "http_bearer"
	SecurityHTTPBasic               SecurityType = "http_basic"
	SecurityOAuth2Password          SecurityType = "oauth2_password"
	SecurityOAuth2ClientCredentials SecurityType = "oauth2_client_credentials"
	SecurityOAuth2AuthorizationCode SecurityType = "oauth2_authorization_code"
	SecurityOpenIDConnect           SecurityType = "openid_connect"
	SecurityNone                    SecurityType = "none"
)

// SecurityScheme is one declared scheme with type-specific details such as
// the API key header name or the OAuth2 token URL.
type SecurityScheme struct {
	Name        string            `json:"name"`
	Type        SecurityType      `json:"type"`
	Description string            `json:"description,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// SecurityRequirement references a scheme with its requested scopes.
type SecurityRequirement struct {
	SchemeName string   `json:"scheme_name"`
	Scopes     []string `json:"scopes,omitempty"`
}

// SecurityAnalysis is the security surface of a spec. EndpointRequirements
// is keyed by "METHOD /path".
type SecurityAnalysis struct {
	Schemes              map[string]SecurityScheme        `json:"schemes,omitempty"`
	GlobalRequirements   []SecurityRequirement            `json:"global_requirements,omitempty"`
	EndpointRequirements map[string][]SecurityRequirement `json:"endpoint_requirements,omitempty"`
	HasSecurity          bool                             `json:"has_security"`
	PrimaryScheme        *SecurityScheme                  `json:"primary_scheme,omitempty"`
}

func detectSecurity(doc *openapi3.T) SecurityAnalysis {
	analysis := SecurityAnalysis{
		Schemes:              map[string]SecurityScheme{},
		EndpointRequirements: map[string][]SecurityRequirement{},
	}

	if doc.Components != nil {
		for name, ref := range doc.Components.SecuritySchemes {
			if ref == nil || ref.Value == nil {
				continue
			}
			analysis.Schemes[name] = parseSecurityScheme(name, ref.Value)
		}
	}
	analysis.GlobalRequirements = toRequirements(doc.Security)

	if doc.Paths != nil {
		for path, item := range doc.Paths.Map() {
			if item == nil {
				continue
			}
			for method, op := range item.Operations() {
				if op == nil || op.Security == nil {
					continue
				}
				reqs := toRequirements(*op.Security)
				if len(reqs) > 0 {
					analysis.EndpointRequirements[method+" "+path] = reqs
				}
			}
		}
	}

	analysis.HasSecurity = len(analysis.Schemes) > 0
	analysis.PrimaryScheme = pickPrimaryScheme(analysis.Schemes)
	return analysis
}

func toRequirements(reqs openapi3.SecurityRequirements) []SecurityRequirement {
	var out []SecurityRequirement
	for _, req := range reqs {
		for name, scopes := range req {
			out = append(out, SecurityRequirement{SchemeName: name, Scopes: scopes})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchemeName < out[j].SchemeName })
	return out
}

func parseSecurityScheme(name string, ss *openapi3.SecurityScheme) SecurityScheme {
	scheme := SecurityScheme{
		Name:        name,
		Type:        SecurityNone,
		Description: ss.Description,
		Details:     map[string]string{},
	}

	switch ss.Type {
	case "apiKey":
		scheme.Type = SecurityAPIKey
		scheme.Details["location"] = defaultString(ss.In, "header")
		scheme.Details["param_name"] = defaultString(ss.Name, "X-API-Key")
	case "http":
		switch strings.ToLower(ss.Scheme) {
		case "bearer":
			scheme.Type = SecurityHTTPBearer
			scheme.Details["bearer_format"] = defaultString(ss.BearerFormat, "JWT")
		case "basic":
			scheme.Type = SecurityHTTPBasic
		}
	case "oauth2":
		if ss.Flows == nil {
			break
		}
		switch {
		case ss.Flows.Password != nil:
			scheme.Type = SecurityOAuth2Password
			fillFlowDetails(scheme.Details, ss.Flows.Password)
		case ss.Flows.ClientCredentials != nil:
			scheme.Type = SecurityOAuth2ClientCredentials
			fillFlowDetails(scheme.Details, ss.Flows.ClientCredentials)
		case ss.Flows.AuthorizationCode != nil:
			scheme.Type = SecurityOAuth2AuthorizationCode
			fillFlowDetails(scheme.Details, ss.Flows.AuthorizationCode)
			scheme.Details["authorization_url"] = ss.Flows.AuthorizationCode.AuthorizationURL
		}
	case "openIdConnect":
		scheme.Type = SecurityOpenIDConnect
		scheme.Details["openid_connect_url"] = ss.OpenIdConnectUrl
	}
	return scheme
}

func fillFlowDetails(details map[string]string, flow *openapi3.OAuthFlow) {
	details["token_url"] = flow.TokenURL
	if len(flow.Scopes) > 0 {
		scopes := make([]string, 0, len(flow.Scopes))
		for s := range flow.Scopes {
			scopes = append(scopes, s)
		}
		sort.Strings(scopes)
		details["scopes"] = strings.Join(scopes, " ")
	}
}

var schemePriority = map[SecurityType]int{
	SecurityHTTPBearer:              0,
	SecurityOAuth2Password:          1,
	SecurityOAuth2ClientCredentials: 2,
	SecurityAPIKey:                  3,
	SecurityHTTPBasic:               4,
}

// pickPrimaryScheme selects the scheme auth derivation targets. Bearer and
// OAuth2 flows win over static credentials; ties break on scheme name.
func pickPrimaryScheme(schemes map[string]SecurityScheme) *SecurityScheme {
	var best *SecurityScheme
	bestRank := len(schemePriority) + 1
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := schemes[name]
		rank, ok := schemePriority[s.Type]
		if !ok {
			rank = len(schemePriority)
		}
		if best == nil || rank < bestRank {
			chosen := s
			best = &chosen
			bestRank = rank
		}
	}
	return best
}

// AuthStep is derived authentication material. Step is nil for schemes that
// need no login call (API key, basic); their headers come from variables.
type AuthStep struct {
	Step        *utdl.Step        `json:"step,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	UsageHeader map[string]string `json:"usage_header,omitempty"`
}

// AuthOptions customizes auth step generation.
type AuthOptions struct {
	// LoginEndpoint overrides the /auth/login default for bearer schemes.
	LoginEndpoint string
	// Credentials supplies literal values; missing keys fall back to
	// ${VARIABLE} placeholders resolved at execution time.
	Credentials map[string]string
}

// GenerateAuthSteps derives login steps and header templates for the
// primary scheme of the analysis.
func GenerateAuthSteps(analysis SecurityAnalysis, opts AuthOptions) []AuthStep {
	if !analysis.HasSecurity || analysis.PrimaryScheme == nil {
		return nil
	}
	scheme := *analysis.PrimaryScheme
	cred := func(key, fallback string) string {
		if v, ok := opts.Credentials[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	switch scheme.Type {
	case SecurityAPIKey:
		apiKey := cred("api_key", "${API_KEY}")
		header := map[string]string{}
		if scheme.Details["location"] == "header" {
			header[scheme.Details["param_name"]] = apiKey
		}
		return []AuthStep{{
			Variables:   map[string]string{"api_key": apiKey},
			UsageHeader: header,
		}}

	case SecurityHTTPBasic:
		username := cred("username", "${USERNAME}")
		password := cred("password", "${PASSWORD}")
		return []AuthStep{{
			Variables:   map[string]string{"basic_auth_user": username, "basic_auth_pass": password},
			UsageHeader: map[string]string{"Authorization": "Basic ${basic_auth_encoded}"},
		}}

	case SecurityHTTPBearer:
		endpoint := opts.LoginEndpoint
		if endpoint == "" {
			endpoint = "/auth/login"
		}
		step := &utdl.Step{
			ID:          "auth-login",
			Action:      utdl.ActionHTTPRequest,
			Description: "Login to obtain a bearer token",
			Params: map[string]interface{}{
				"method": "POST",
				"path":   endpoint,
				"body": map[string]interface{}{
					"username": cred("username", "${USERNAME}"),
					"password": cred("password", "${PASSWORD}"),
				},
			},
			Assertions: []utdl.Assertion{
				{Type: utdl.AssertStatusCode, Operator: utdl.OpEq, Value: 200},
			},
			Extract: []utdl.Extraction{
				{Source: "body", Path: "$.access_token", Target: "access_token"},
				{Source: "body", Path: "$.refresh_token", Target: "refresh_token"},
			},
		}
		return []AuthStep{{
			Step: step,
			Variables: map[string]string{
				"access_token":  "${access_token}",
				"refresh_token": "${refresh_token}",
			},
			UsageHeader: map[string]string{"Authorization": "Bearer ${access_token}"},
		}}

	case SecurityOAuth2Password:
		body := map[string]interface{}{
			"grant_type":    "password",
			"username":      cred("username", "${USERNAME}"),
			"password":      cred("password", "${PASSWORD}"),
			"client_id":     cred("client_id", "${CLIENT_ID}"),
			"client_secret": cred("client_secret", "${CLIENT_SECRET}"),
		}
		return []AuthStep{oauthTokenStep("auth-oauth2-password", "OAuth2 password grant", scheme, body)}

	case SecurityOAuth2ClientCredentials:
		body := map[string]interface{}{
			"grant_type":    "client_credentials",
			"client_id":     cred("client_id", "${CLIENT_ID}"),
			"client_secret": cred("client_secret", "${CLIENT_SECRET}"),
		}
		if scope := cred("scope", ""); scope != "" {
			body["scope"] = scope
		}
		return []AuthStep{oauthTokenStep("auth-oauth2-client", "OAuth2 client credentials grant", scheme, body)}
	}
	return nil
}

func oauthTokenStep(id, desc string, scheme SecurityScheme, body map[string]interface{}) AuthStep {
	tokenURL := scheme.Details["token_url"]
	if tokenURL == "" {
		tokenURL = "/oauth/token"
	}
	step := &utdl.Step{
		ID:          id,
		Action:      utdl.ActionHTTPRequest,
		Description: desc,
		Params: map[string]interface{}{
			"method":  "POST",
			"path":    tokenURL,
			"headers": map[string]interface{}{"Content-Type": "application/x-www-form-urlencoded"},
			"body":    body,
		},
		Assertions: []utdl.Assertion{
			{Type: utdl.AssertStatusCode, Operator: utdl.OpEq, Value: 200},
		},
		Extract: []utdl.Extraction{
			{Source: "body", Path: "$.access_token", Target: "access_token"},
		},
	}
	return AuthStep{
		Step:        step,
		Variables:   map[string]string{"access_token": "${access_token}"},
		UsageHeader: map[string]string{"Authorization": "Bearer ${access_token}"},
	}
}

// AuthHeaderForScheme returns the header template requests must carry once
// the scheme's variables are resolved.
func AuthHeaderForScheme(scheme SecurityScheme) map[string]string {
	switch scheme.Type {
	case SecurityAPIKey:
		if scheme.Details["location"] == "header" {
			return map[string]string{defaultString(scheme.Details["param_name"], "X-API-Key"): "${api_key}"}
		}
		return map[string]string{}
	case SecurityHTTPBearer, SecurityOAuth2Password, SecurityOAuth2ClientCredentials:
		return map[string]string{"Authorization": "Bearer ${access_token}"}
	case SecurityHTTPBasic:
		return map[string]string{"Authorization": "Basic ${basic_auth_encoded}"}
	}
	return map[string]string{}
}

// InjectAuth returns a copy of the steps with the auth header merged into
// every HTTP step. Input steps are not modified.
func InjectAuth(steps []utdl.Step, authHeader map[string]string) []utdl.Step {
	if len(authHeader) == 0 {
		return steps
	}
	out := make([]utdl.Step, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Action != utdl.ActionHTTPRequest {
			continue
		}
		params := make(map[string]interface{}, len(s.Params)+1)
		for k, v := range s.Params {
			params[k] = v
		}
		headers := map[string]interface{}{}
		if existing, ok := params["headers"].(map[string]interface{}); ok {
			for k, v := range existing {
				headers[k] = v
			}
		}
		for k, v := range authHeader {
			headers[k] = v
		}
		params["headers"] = headers
		out[i].Params = params
	}
	return out
}

// SecurityText renders the analysis for inclusion in requirement text.
func SecurityText(analysis SecurityAnalysis) string {
	if !analysis.HasSecurity {
		return "The API requires no authentication."
	}
	lines := []string{"API security:", ""}

	names := make([]string, 0, len(analysis.Schemes))
	for name := range analysis.Schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		scheme := analysis.Schemes[name]
		lines = append(lines, fmt.Sprintf("- %s: %s", name, scheme.Type))
		if scheme.Description != "" {
			lines = append(lines, "  Description: "+scheme.Description)
		}
		switch scheme.Type {
		case SecurityAPIKey:
			lines = append(lines, fmt.Sprintf("  Location: %s, parameter: %s",
				scheme.Details["location"], scheme.Details["param_name"]))
		case SecurityOAuth2Password, SecurityOAuth2ClientCredentials:
			lines = append(lines, "  Token URL: "+scheme.Details["token_url"])
		}
	}

	if len(analysis.GlobalRequirements) > 0 {
		lines = append(lines, "", "Global requirements:")
		for _, req := range analysis.GlobalRequirements {
			scopes := "none"
			if len(req.Scopes) > 0 {
				scopes = strings.Join(req.Scopes, ", ")
			}
			lines = append(lines, fmt.Sprintf("  - %s (scopes: %s)", req.SchemeName, scopes))
		}
	}
	return strings.Join(lines, "\n")
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
