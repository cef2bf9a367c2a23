// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-idp.
//
// go-passkey-idp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey-idp/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey-idp/pkg/health"
	"github.com/jeremyhahn/go-passkey-idp/pkg/identity"
	"github.com/jeremyhahn/go-passkey-idp/pkg/keys"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
	"github.com/jeremyhahn/go-passkey-idp/pkg/session"
	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

const (
	testIssuer      = "https://idp.example.com"
	testRPID        = "idp.example.com"
	testClientID    = "relying-party"
	testRedirectURI = "https://app.example.com/callback"
)

type testEnv struct {
	server   *httptest.Server
	users    identity.UserRepository
	sessions *session.Manager
	keys     *keys.Service
	checker  *health.Checker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := storage.NewMemory()

	users := identity.NewStorageUserRepository(backend)
	creds := identity.NewStorageCredentialRepository(backend)
	sessions := session.NewManager(backend)

	ceremonySvc, err := ceremony.NewService(ceremony.ServiceParams{
		Config: &ceremony.Config{
			RPID:          testRPID,
			RPDisplayName: "Example IdP",
			RPOrigins:     []string{testIssuer},
		},
		Users:       users,
		Credentials: creds,
		Challenges:  backend,
		Sessions:    sessions,
	})
	require.NoError(t, err)

	keySvc, err := keys.NewService(keys.ServiceParams{
		Backend: backend,
		Issuer:  testIssuer,
	})
	require.NoError(t, err)
	require.NoError(t, keySvc.EnsureKeyPair())

	clients := oidc.NewMemoryRegistry(&oidc.Client{
		ID:           testClientID,
		Name:         "Relying Party",
		RedirectURIs: []string{testRedirectURI},
	})

	engine, err := oidc.NewEngine(oidc.EngineParams{
		Clients:  clients,
		Users:    users,
		Sessions: sessions,
		Keys:     keySvc,
		Codes:    backend,
		Issuer:   testIssuer,
	})
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.RegisterCheck("signing-key", func(ctx context.Context) health.CheckResult {
		if _, err := keySvc.KID(); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	})
	checker.MarkStarted()

	srv, err := NewServer(&Config{
		Addr:          ":0",
		Ceremony:      ceremonySvc,
		Engine:        engine,
		Discovery:     oidc.NewDiscovery(testIssuer),
		Keys:          keySvc,
		Sessions:      sessions,
		HealthChecker: checker,
		CookieSecure:  true,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:   ts,
		users:    users,
		sessions: sessions,
		keys:     keySvc,
		checker:  checker,
	}
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// publicKeyEnvelope peels the {"publicKey": ...} wrapper off credential
// options so virtualwebauthn can parse the inner options.
type publicKeyEnvelope struct {
	PublicKey json.RawMessage `json:"publicKey"`
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

// registerOverHTTP drives a full registration ceremony through the REST
// surface and returns the session cookie.
func registerOverHTTP(t *testing.T, env *testEnv, username string, authenticator *virtualwebauthn.Authenticator, credential *virtualwebauthn.Credential) *http.Cookie {
	t.Helper()
	rp := virtualwebauthn.RelyingParty{Name: "Example IdP", ID: testRPID, Origin: testIssuer}

	resp := env.postJSON(t, "/auth/register/options", OptionsRequest{Username: username})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var envelope publicKeyEnvelope
	decodeBody(t, resp, &envelope)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(envelope.PublicKey))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, *authenticator, *credential, *parsedOptions)

	verifyResp, err := http.Post(env.server.URL+"/auth/register/verify", "application/json", strings.NewReader(attestation))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	cookie := sessionCookie(t, verifyResp)
	var body VerifyResponse
	decodeBody(t, verifyResp, &body)
	assert.Equal(t, username, body.User.Username)

	authenticator.AddCredential(*credential)
	return cookie
}

func TestServer_RegistrationFlow(t *testing.T) {
	env := newTestEnv(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	cookie := registerOverHTTP(t, env, "alice", &authenticator, &credential)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)

	// The session cookie authenticates /auth/session
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/auth/session", nil)
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var sess SessionResponse
	decodeBody(t, resp, &sess)
	assert.True(t, sess.Authenticated)
	require.NotNil(t, sess.User)
	assert.Equal(t, "alice", sess.User.Username)
	assert.True(t, sess.User.IsAdmin)
}

func TestServer_LoginFlow(t *testing.T) {
	env := newTestEnv(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerOverHTTP(t, env, "alice", &authenticator, &credential)

	rp := virtualwebauthn.RelyingParty{Name: "Example IdP", ID: testRPID, Origin: testIssuer}

	resp := env.postJSON(t, "/auth/login/options", OptionsRequest{Username: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var options struct {
		Action  string            `json:"action"`
		Options publicKeyEnvelope `json:"options"`
	}
	decodeBody(t, resp, &options)
	require.Equal(t, "authenticate", options.Action)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(options.Options.PublicKey))
	require.NoError(t, err)
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedOptions)

	verifyResp, err := http.Post(env.server.URL+"/auth/login/verify", "application/json", strings.NewReader(assertion))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	cookie := sessionCookie(t, verifyResp)
	assert.NotEmpty(t, cookie.Value)

	var body VerifyResponse
	decodeBody(t, verifyResp, &body)
	assert.Equal(t, "alice", body.User.Username)
}

func TestServer_LoginOptionsFallbackToRegistration(t *testing.T) {
	env := newTestEnv(t)

	// No admin yet: unknown username gets registration options
	resp := env.postJSON(t, "/auth/login/options", OptionsRequest{Username: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var options struct {
		Action string `json:"action"`
	}
	decodeBody(t, resp, &options)
	assert.Equal(t, "register", options.Action)
}

func TestServer_RegistrationClosedAfterBootstrap(t *testing.T) {
	env := newTestEnv(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerOverHTTP(t, env, "alice", &authenticator, &credential)

	resp := env.postJSON(t, "/auth/login/options", OptionsRequest{Username: "mallory"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var errBody ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, CodeRegistrationClosed, errBody.Error.Code)
}

func TestServer_RegisterOptionsBadUsername(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/auth/register/options", OptionsRequest{Username: "ab"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, CodeInvalidRequest, errBody.Error.Code)
}

func TestServer_Logout(t *testing.T) {
	env := newTestEnv(t)

	sess, err := env.sessions.Create("user-1", "alice", false)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cleared := sessionCookie(t, resp)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// The session no longer validates
	_, err = env.sessions.Validate(sess.Token)
	assert.Error(t, err)
}

func TestServer_Discovery(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age=3600")

	var doc map[string]interface{}
	decodeBody(t, resp, &doc)
	assert.Equal(t, testIssuer, doc["issuer"])
	assert.Equal(t, testIssuer+"/authorize", doc["authorization_endpoint"])
	assert.Equal(t, testIssuer+"/token", doc["token_endpoint"])
	assert.Equal(t, testIssuer+"/userinfo", doc["userinfo_endpoint"])
	assert.Equal(t, testIssuer+"/.well-known/jwks.json", doc["jwks_uri"])
}

func TestServer_JWKS(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jwks struct {
		Keys []struct {
			KID string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
		} `json:"keys"`
	}
	decodeBody(t, resp, &jwks)
	require.Len(t, jwks.Keys, 1)

	kid, err := env.keys.KID()
	require.NoError(t, err)
	assert.Equal(t, kid, jwks.Keys[0].KID)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)
	assert.Equal(t, "sig", jwks.Keys[0].Use)
}

// noRedirectClient returns redirects instead of following them.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func authorizeURL(env *testEnv, extra url.Values) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", testClientID)
	q.Set("redirect_uri", testRedirectURI)
	q.Set("state", "xyz")
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return env.server.URL + "/authorize?" + q.Encode()
}

func TestServer_AuthorizeWithoutSessionRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, err := noRedirectClient().Get(authorizeURL(env, url.Values{
		"nonce":                 {"n-0S6_WzA2Mj"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
	}))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", location.Path)
	assert.Equal(t, testClientID, location.Query().Get("client_id"))
	assert.Equal(t, testRedirectURI, location.Query().Get("redirect_uri"))
	assert.Equal(t, "xyz", location.Query().Get("state"))
	assert.Equal(t, "n-0S6_WzA2Mj", location.Query().Get("nonce"))
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", location.Query().Get("code_challenge"))
	assert.Equal(t, "S256", location.Query().Get("code_challenge_method"))
}

func TestServer_FullAuthorizationCodeFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := &identity.User{ID: "user-1", Username: "alice", IsAdmin: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, env.users.Create(ctx, user))
	sess, err := env.sessions.Create(user.ID, user.Username, user.IsAdmin)
	require.NoError(t, err)

	verifier := "correct-horse-battery-staple-verifier"
	digest := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(digest[:])

	// Authorize with a valid session mints a code
	req, _ := http.NewRequest(http.MethodGet, authorizeURL(env, url.Values{
		"nonce":                 {"n-0S6_WzA2Mj"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}), nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	assert.Equal(t, "xyz", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	// Exchange the code form-encoded, as OAuth clients do
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", testRedirectURI)
	form.Set("client_id", testClientID)
	form.Set("code_verifier", verifier)

	tokenResp, err := http.Post(env.server.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)
	assert.Equal(t, "no-store", tokenResp.Header.Get("Cache-Control"))

	var tokens oidc.TokenResponse
	decodeBody(t, tokenResp, &tokens)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 3600, tokens.ExpiresIn)
	require.NotEmpty(t, tokens.IDToken)
	require.NotEmpty(t, tokens.AccessToken)

	// The id_token verifies against the issuer and carries the nonce
	claims, err := env.keys.Verify(tokens.IDToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims["sub"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])

	// The access token works at /userinfo
	uiReq, _ := http.NewRequest(http.MethodGet, env.server.URL+"/userinfo", nil)
	uiReq.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	uiResp, err := http.DefaultClient.Do(uiReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, uiResp.StatusCode)

	var userInfo oidc.UserInfoResponse
	decodeBody(t, uiResp, &userInfo)
	assert.Equal(t, user.ID, userInfo.Sub)

	// The code is single-use
	replayResp, err := http.Post(env.server.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, replayResp.StatusCode)

	var replayErr OIDCErrorResponse
	decodeBody(t, replayResp, &replayErr)
	assert.Equal(t, "invalid_grant", replayErr.Error)
}

func TestServer_TokenUnsupportedGrantType(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("code", "whatever")
	form.Set("redirect_uri", testRedirectURI)
	form.Set("client_id", testClientID)

	resp, err := http.Post(env.server.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody OIDCErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "unsupported_grant_type", errBody.Error)
	assert.NotEmpty(t, errBody.ErrorDescription)
}

func TestServer_TokenAcceptsJSONBody(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := &identity.User{ID: "user-2", Username: "bob", CreatedAt: time.Now().UTC()}
	require.NoError(t, env.users.Create(ctx, user))
	sess, err := env.sessions.Create(user.ID, user.Username, false)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, authorizeURL(env, nil), nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	tokenResp := env.postJSON(t, "/token", oidc.TokenRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: testRedirectURI,
		ClientID:    testClientID,
	})
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)

	var tokens oidc.TokenResponse
	decodeBody(t, tokenResp, &tokens)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestServer_UserInfoWithoutToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/userinfo")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	// Missing header is invalid_request; invalid_token is reserved for
	// tokens that fail verification.
	var errBody OIDCErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "invalid_request", errBody.Error)
}

func TestServer_UserInfoGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/userinfo", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var errBody OIDCErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "invalid_token", errBody.Error)
}

func TestServer_HealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestServer_CorrelationHeaderEchoed(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	req.Header.Set("X-Correlation-ID", "trace-me-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "trace-me-123", resp.Header.Get("X-Correlation-ID"))

	// A fresh one is generated when the client sends none
	resp2, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.NotEmpty(t, resp2.Header.Get("X-Correlation-ID"))
}
