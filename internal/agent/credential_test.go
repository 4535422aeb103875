package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestAzureCLICredential(t *testing.T) {
	upnToken := signTestToken(t, jwt.MapClaims{"upn": "alice@example.com"})

	var gotName string
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return json.Marshal(map[string]interface{}{
			"accessToken": upnToken,
			"expiresOn":   "2030-01-02 03:04:05.000000",
			"expires_on":  1893553445,
		})
	}

	cred := newAzureCLICredential(run)
	tok, err := cred.GetToken(context.Background(), []string{"https://management.azure.com/.default"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotName != "az" {
		t.Errorf("expected az to be run, got %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "account get-access-token") || !strings.Contains(joined, "--scope https://management.azure.com/.default") {
		t.Errorf("unexpected arguments: %q", joined)
	}
	if tok.Value != upnToken {
		t.Error("expected token value from CLI output")
	}
	if tok.Account != "alice@example.com" {
		t.Errorf("expected account from upn claim, got %q", tok.Account)
	}
	if !tok.ExpiresOn.Equal(time.Unix(1893553445, 0)) {
		t.Errorf("expected expires_on timestamp to win, got %v", tok.ExpiresOn)
	}
}

func TestAzureCLICredential_LegacyExpiry(t *testing.T) {
	run := func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte(`{"accessToken": "opaque", "expiresOn": "2030-01-02 03:04:05.000000"}`), nil
	}

	tok, err := newAzureCLICredential(run).GetToken(context.Background(), []string{"scope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.Local)
	if !tok.ExpiresOn.Equal(want) {
		t.Errorf("expected %v, got %v", want, tok.ExpiresOn)
	}
	if tok.Account != azureCLIAccount {
		t.Errorf("expected fallback account for opaque token, got %q", tok.Account)
	}
}

func TestAzureCLICredential_Errors(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		output string
		runErr error
	}{
		{name: "no scopes", scopes: nil},
		{name: "command fails", scopes: []string{"s"}, runErr: errors.New("exit status 1")},
		{name: "not json", scopes: []string{"s"}, output: "Please run 'az login'"},
		{name: "empty token", scopes: []string{"s"}, output: `{"accessToken": ""}`},
		{name: "bad expiry", scopes: []string{"s"}, output: `{"accessToken": "x", "expiresOn": "tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func(_ context.Context, _ string, _ ...string) ([]byte, error) {
				return []byte(tt.output), tt.runErr
			}
			if _, err := newAzureCLICredential(run).GetToken(context.Background(), tt.scopes); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func newTokenEndpoint(t *testing.T, accessToken string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientCredentials(t *testing.T) {
	var grantType, scope string
	server := newTokenEndpoint(t, "opaque-app-token", func(r *http.Request) {
		grantType = r.PostForm.Get("grant_type")
		scope = r.PostForm.Get("scope")
	})

	cred := newClientCredentials("my-client", "my-secret", server.URL)
	tok, err := cred.GetToken(context.Background(), []string{"api://tool/.default"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if grantType != "client_credentials" {
		t.Errorf("expected client_credentials grant, got %q", grantType)
	}
	if scope != "api://tool/.default" {
		t.Errorf("expected requested scope, got %q", scope)
	}
	if tok.Value != "opaque-app-token" {
		t.Errorf("unexpected token %q", tok.Value)
	}
	if tok.Account != "my-client" {
		t.Errorf("expected client id as account for opaque token, got %q", tok.Account)
	}
	if tok.ExpiresOn.IsZero() {
		t.Error("expected expiry from expires_in")
	}
}

func TestClientCredentials_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid_client"}`))
	}))
	defer server.Close()

	cred := newClientCredentials("my-client", "wrong", server.URL)
	if _, err := cred.GetToken(context.Background(), []string{"s"}); err == nil {
		t.Error("expected error for rejected client")
	}
}

func TestBrowserCredential(t *testing.T) {
	var verifier string
	server := newTokenEndpoint(t, "user-token", func(r *http.Request) {
		verifier = r.PostForm.Get("code_verifier")
	})

	cfg := &Config{
		ClientID:    "browser-client",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    server.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
	}

	var authURL *url.URL
	opener := func(raw string) error {
		parsed, err := url.Parse(raw)
		if err != nil {
			return err
		}
		authURL = parsed
		query := parsed.Query()
		callback := query.Get("redirect_uri") + "?code=auth-code&state=" + url.QueryEscape(query.Get("state"))
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	cred := newBrowserCredential(cfg, NewLoggerWithWriter(false, false, false, &bytes.Buffer{}), opener)
	tok, err := cred.GetToken(context.Background(), []string{"openid", "api://tool/.default"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tok.Value != "user-token" {
		t.Errorf("unexpected token %q", tok.Value)
	}
	if authURL == nil {
		t.Fatal("browser was not opened")
	}
	if authURL.Query().Get("code_challenge_method") != "S256" {
		t.Errorf("expected PKCE S256 challenge, got %q", authURL.Query().Get("code_challenge_method"))
	}
	if authURL.Query().Get("scope") != "openid api://tool/.default" {
		t.Errorf("unexpected scope %q", authURL.Query().Get("scope"))
	}
	if verifier == "" {
		t.Error("expected code_verifier in token exchange")
	}
}

func TestBrowserCredential_KeepsRedirectHostname(t *testing.T) {
	server := newTokenEndpoint(t, "user-token", nil)

	cfg := &Config{
		ClientID:    "browser-client",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    server.URL,
		RedirectURL: "http://localhost:0/callback",
	}

	var redirectURI string
	opener := func(raw string) error {
		parsed, err := url.Parse(raw)
		if err != nil {
			return err
		}
		query := parsed.Query()
		redirectURI = query.Get("redirect_uri")
		callback := redirectURI + "?code=auth-code&state=" + url.QueryEscape(query.Get("state"))
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	if _, err := newBrowserCredential(cfg, nil, opener).GetToken(context.Background(), []string{"openid"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent, err := url.Parse(redirectURI)
	if err != nil {
		t.Fatalf("invalid redirect_uri %q: %v", redirectURI, err)
	}
	if sent.Hostname() != "localhost" {
		t.Errorf("expected redirect hostname to stay localhost, got %q", redirectURI)
	}
	if sent.Port() == "" || sent.Port() == "0" {
		t.Errorf("expected the listener port in the redirect, got %q", redirectURI)
	}
	if sent.Path != "/callback" {
		t.Errorf("expected callback path to be kept, got %q", redirectURI)
	}
}

func TestBrowserCredential_FixedPortRedirectUnchanged(t *testing.T) {
	server := newTokenEndpoint(t, "user-token", nil)

	// Reserve a free port, then hand it to the credential as a fixed redirect port.
	reserved, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	_, port, _ := net.SplitHostPort(reserved.Addr().String())
	reserved.Close()

	redirect := "http://127.0.0.1:" + port + "/callback"
	cfg := &Config{
		ClientID:    "browser-client",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    server.URL,
		RedirectURL: redirect,
	}

	var redirectURI string
	opener := func(raw string) error {
		parsed, _ := url.Parse(raw)
		query := parsed.Query()
		redirectURI = query.Get("redirect_uri")
		callback := redirectURI + "?code=auth-code&state=" + url.QueryEscape(query.Get("state"))
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	if _, err := newBrowserCredential(cfg, nil, opener).GetToken(context.Background(), []string{"openid"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if redirectURI != redirect {
		t.Errorf("expected configured redirect %q to be sent verbatim, got %q", redirect, redirectURI)
	}
}

func TestBrowserCredential_StateMismatch(t *testing.T) {
	server := newTokenEndpoint(t, "user-token", nil)

	cfg := &Config{
		ClientID:    "browser-client",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    server.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
	}

	opener := func(raw string) error {
		parsed, _ := url.Parse(raw)
		callback := parsed.Query().Get("redirect_uri") + "?code=auth-code&state=forged"
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	cred := newBrowserCredential(cfg, nil, opener)
	_, err := cred.GetToken(context.Background(), []string{"openid"})
	if err == nil || !strings.Contains(err.Error(), "state mismatch") {
		t.Errorf("expected state mismatch error, got %v", err)
	}
}

func TestBrowserCredential_ContextCancelled(t *testing.T) {
	cfg := &Config{
		ClientID:    "browser-client",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    "https://idp.example.com/token",
		RedirectURL: "http://127.0.0.1:0/callback",
	}

	ctx, cancel := context.WithCancel(context.Background())
	opener := func(string) error {
		cancel()
		return nil
	}

	_, err := newBrowserCredential(cfg, nil, opener).GetToken(ctx, []string{"openid"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStaticCredential(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signTestToken(t, jwt.MapClaims{"preferred_username": "bob", "exp": exp.Unix()})

	tok, err := newStaticCredential("  " + raw + "\n").GetToken(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Value != raw {
		t.Error("expected surrounding whitespace to be trimmed")
	}
	if tok.Account != "bob" {
		t.Errorf("expected account from claims, got %q", tok.Account)
	}
	if !tok.ExpiresOn.Equal(exp) {
		t.Errorf("expected expiry %v, got %v", exp, tok.ExpiresOn)
	}

	if _, err := newStaticCredential("").GetToken(context.Background(), nil); err == nil {
		t.Error("expected error for empty static token")
	}
}

func TestDevCredential(t *testing.T) {
	cred, err := newDevCredential()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	cred.now = func() time.Time { return fixed }

	tok, err := cred.GetToken(context.Background(), []string{"api://tool/.default", "offline_access"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tok.Account != devAccount {
		t.Errorf("unexpected account %q", tok.Account)
	}
	if !tok.ExpiresOn.Equal(fixed.Add(time.Hour)) {
		t.Errorf("unexpected expiry %v", tok.ExpiresOn)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok.Value, claims, func(*jwt.Token) (interface{}, error) {
		return cred.key, nil
	}, jwt.WithTimeFunc(func() time.Time { return fixed }))
	if err != nil || !parsed.Valid {
		t.Fatalf("expected token signed with the dev key: %v", err)
	}
	if claims["scp"] != "api://tool/.default offline_access" {
		t.Errorf("unexpected scp claim %v", claims["scp"])
	}
	if claims["aud"] != "api://tool/.default" {
		t.Errorf("unexpected aud claim %v", claims["aud"])
	}
	if claims["iss"] != devIssuer {
		t.Errorf("unexpected iss claim %v", claims["iss"])
	}
}

// stubCredential returns a fixed token and counts calls
type stubCredential struct {
	token AccessToken
	err   error
	calls int
}

func (s *stubCredential) GetToken(_ context.Context, _ []string) (AccessToken, error) {
	s.calls++
	return s.token, s.err
}

func TestAcquireToken(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLoggerWithWriter(false, false, false, buf)
	source := &stubCredential{token: AccessToken{
		Value:     "a-long-secret-token-value",
		Account:   "alice@example.com",
		ExpiresOn: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	tok, err := AcquireToken(context.Background(), source, []string{"s"}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Value != "a-long-secret-token-value" {
		t.Errorf("unexpected token %q", tok.Value)
	}

	output := buf.String()
	if !strings.Contains(output, "Token acquired for: alice@example.com") {
		t.Errorf("expected account line, got %q", output)
	}
	if !strings.Contains(output, "Expires: 2030-01-01T00:00:00Z") {
		t.Errorf("expected expiry line, got %q", output)
	}
	if strings.Contains(output, "a-long-secret-token-value") {
		t.Errorf("token must not be logged in full, got %q", output)
	}
}

func TestAcquireToken_Failures(t *testing.T) {
	tests := []struct {
		name   string
		source *stubCredential
	}{
		{name: "source error", source: &stubCredential{err: errors.New("az: not logged in")}},
		{name: "empty token", source: &stubCredential{token: AccessToken{Account: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := AcquireToken(context.Background(), tt.source, []string{"s"}, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewTokenSource_ReusesValidToken(t *testing.T) {
	source := &stubCredential{token: AccessToken{
		Value:     "model-token",
		ExpiresOn: time.Now().Add(time.Hour),
	}}

	ts := NewTokenSource(context.Background(), source, []string{ModelScope})
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken != "model-token" || tok.TokenType != "Bearer" {
			t.Errorf("unexpected token %+v", tok)
		}
	}
	if source.calls != 1 {
		t.Errorf("expected token to be reused, got %d calls", source.calls)
	}
}

func TestAccessTokenRedacted(t *testing.T) {
	if got := (AccessToken{Value: "short"}).Redacted(); got != "[REDACTED]" {
		t.Errorf("unexpected redaction %q", got)
	}
	got := (AccessToken{Value: "eyJhbGciOiJIUzI1NiJ9.payload.sig"}).Redacted()
	if !strings.HasPrefix(got, "eyJhbGciOiJI") || strings.Contains(got, "payload") {
		t.Errorf("unexpected redaction %q", got)
	}
}

func TestNewCredentialSource(t *testing.T) {
	tests := []struct {
		source  string
		wantErr bool
	}{
		{credentialAzureCLI, false},
		{credentialClientCredentials, false},
		{credentialBrowser, false},
		{credentialStatic, false},
		{credentialDev, false},
		{"unknown", true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := (&Config{CredentialSource: tt.source, StaticToken: "a.b.c"}).WithDefaults()
			source, err := NewCredentialSource(cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && source == nil {
				t.Error("expected a credential source")
			}
		})
	}
}
