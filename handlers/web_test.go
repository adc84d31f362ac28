package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appvault/appvault/internal/config"
	"github.com/appvault/appvault/internal/documents"
	"github.com/appvault/appvault/internal/models"
	"github.com/appvault/appvault/internal/oidc"
	"github.com/appvault/appvault/internal/sessions"
	"github.com/appvault/appvault/internal/users"
	"github.com/appvault/appvault/pkg/middleware"
)

// fake user repo
type fakeUserRepo struct{}

func (f *fakeUserRepo) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	return u, nil
}

func (f *fakeUserRepo) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return &models.User{Sub: sub, Email: "a@b.c", Name: "Alice"}, nil
}

// fake provider client
type fakeExchanger struct {
	claims      map[string]interface{}
	exchangeErr error
}

func (f *fakeExchanger) AuthCodeURL(state, nonce string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("nonce", nonce)
	return "https://idp.example.com/authorize?" + q.Encode()
}

func (f *fakeExchanger) Exchange(ctx context.Context, code, nonce string) (*oidc.TokenSet, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	claims := f.claims
	if claims == nil {
		claims = map[string]interface{}{"sub": "auth0|abc123", "name": "Alice", "email": "a@b.c"}
	}
	sub, _ := claims["sub"].(string)
	return &oidc.TokenSet{AccessToken: "provider-access-token", ExpiresIn: 3600, Subject: sub, Claims: claims}, nil
}

func (f *fakeExchanger) LogoutURL(returnTo string) string {
	q := url.Values{}
	q.Set("returnTo", returnTo)
	q.Set("client_id", "cid")
	return "https://idp.example.com/v2/logout?" + q.Encode()
}

type testApp struct {
	router   *gin.Engine
	docsRepo *documents.MemoryRepository
	sessions *sessions.Service
	auth     *fakeExchanger
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := &config.Config{}
	cfg.Session.Secret = "handler-test-secret-32-bytes-xxxx"
	cfg.Session.TTL = time.Hour

	auth := &fakeExchanger{}
	docsRepo := documents.NewMemoryRepository()
	sSvc := sessions.NewService(sessions.NewMemoryRepository())
	h := NewWebHandler(cfg, auth, users.NewService(&fakeUserRepo{}), sSvc, documents.NewService(docsRepo))

	r := gin.New()
	h.Register(r)
	return &testApp{router: r, docsRepo: docsRepo, sessions: sSvc, auth: auth}
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// login performs /login followed by /callback and returns the session cookie.
func (a *testApp) login(t *testing.T) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest("GET", "/login", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	resp := w.Result()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	stateCk := cookieByName(resp, stateCookie)
	require.NotNil(t, stateCk)

	req2 := httptest.NewRequest("GET", "/callback?code=abc&state="+state, nil)
	req2.AddCookie(stateCk)
	w2 := httptest.NewRecorder()
	a.router.ServeHTTP(w2, req2)
	resp2 := w2.Result()
	require.Equal(t, http.StatusFound, resp2.StatusCode)
	require.Equal(t, "/", resp2.Header.Get("Location"))

	sessCk := cookieByName(resp2, middleware.SessionCookie)
	require.NotNil(t, sessCk)
	require.NotEmpty(t, sessCk.Value)
	return sessCk
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/login", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	resp := w.Result()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://idp.example.com/authorize?"))

	ck := cookieByName(resp, stateCookie)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
}

func TestCallback_SetsSessionAndTokenCookies(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/login", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	resp := w.Result()
	loc, _ := url.Parse(resp.Header.Get("Location"))
	state := loc.Query().Get("state")

	req2 := httptest.NewRequest("GET", "/callback?code=abc&state="+state, nil)
	req2.AddCookie(cookieByName(resp, stateCookie))
	w2 := httptest.NewRecorder()
	app.router.ServeHTTP(w2, req2)
	resp2 := w2.Result()

	require.Equal(t, http.StatusFound, resp2.StatusCode)
	sessCk := cookieByName(resp2, middleware.SessionCookie)
	require.NotNil(t, sessCk)
	assert.True(t, sessCk.HttpOnly)
	assert.True(t, sessCk.Secure)

	atCk := cookieByName(resp2, accessTokenCookie)
	require.NotNil(t, atCk)
	assert.Equal(t, "provider-access-token", atCk.Value)
	assert.True(t, atCk.HttpOnly)
	assert.Equal(t, 3600, atCk.MaxAge)

	// session resolves to the authenticated subject
	sess, err := app.sessions.Resolve(context.Background(), sessCk.Value)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "auth0|abc123", sess.Sub)
}

func TestCallback_StateMismatch(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/login", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	resp := w.Result()

	req2 := httptest.NewRequest("GET", "/callback?code=abc&state=forged", nil)
	req2.AddCookie(cookieByName(resp, stateCookie))
	w2 := httptest.NewRecorder()
	app.router.ServeHTTP(w2, req2)
	resp2 := w2.Result()

	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	sessCk := cookieByName(resp2, middleware.SessionCookie)
	assert.Nil(t, sessCk)
}

func TestCallback_MissingStateCookie(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/callback?code=abc&state=whatever", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	app := newTestApp(t)
	app.auth.exchangeErr = &oidc.ExchangeError{Reason: "code exchange rejected"}

	req := httptest.NewRequest("GET", "/login", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	resp := w.Result()
	loc, _ := url.Parse(resp.Header.Get("Location"))

	req2 := httptest.NewRequest("GET", "/callback?code=bad&state="+loc.Query().Get("state"), nil)
	req2.AddCookie(cookieByName(resp, stateCookie))
	w2 := httptest.NewRecorder()
	app.router.ServeHTTP(w2, req2)
	resp2 := w2.Result()

	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	// generic body only
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	assert.Equal(t, "authentication failed", body["error"])
	assert.Nil(t, cookieByName(resp2, middleware.SessionCookie))
}

func TestHome_AnonymousAndAuthenticated(t *testing.T) {
	app := newTestApp(t)

	// anonymous
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var anon map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &anon))
	assert.Nil(t, anon["user"])

	// authenticated
	sessCk := app.login(t)
	req2 := httptest.NewRequest("GET", "/", nil)
	req2.AddCookie(sessCk)
	w2 := httptest.NewRecorder()
	app.router.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &got))
	user, ok := got["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Alice", user["name"])
	// no token material in the response
	assert.NotContains(t, w2.Body.String(), "provider-access-token")
}

func TestSaveAndData_FullScenario(t *testing.T) {
	app := newTestApp(t)
	sessCk := app.login(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/save", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(sessCk)
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		return w
	}

	w := post(`{"notes":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "Data saved", saved["message"])

	get := func() map[string]interface{} {
		req := httptest.NewRequest("GET", "/data", nil)
		req.AddCookie(sessCk)
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		return got
	}

	assert.Equal(t, map[string]interface{}{"notes": "hello"}, get())

	// second save replaces, not merges
	w2 := post(`{"notes":"updated"}`)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, map[string]interface{}{"notes": "updated"}, get())
}

func TestSave_Unauthenticated(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("POST", "/save", strings.NewReader(`{"notes":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	// no document was created for anyone
	d, err := app.docsRepo.GetBySub(context.Background(), "auth0|abc123")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestSave_InvalidJSON(t *testing.T) {
	app := newTestApp(t)
	sessCk := app.login(t)

	req := httptest.NewRequest("POST", "/save", strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessCk)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	d, err := app.docsRepo.GetBySub(context.Background(), "auth0|abc123")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestLogout_DestroysSession(t *testing.T) {
	app := newTestApp(t)
	sessCk := app.login(t)

	req := httptest.NewRequest("GET", "/logout", nil)
	req.AddCookie(sessCk)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	resp := w.Result()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://idp.example.com/v2/logout?"))

	// cookies expired
	cleared := cookieByName(resp, middleware.SessionCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	// session no longer resolvable
	sess, err := app.sessions.Resolve(context.Background(), sessCk.Value)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// logging out again without a session is fine
	req2 := httptest.NewRequest("GET", "/logout", nil)
	w2 := httptest.NewRecorder()
	app.router.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusFound, w2.Result().StatusCode)
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestSafeReturnTo(t *testing.T) {
	assert.Equal(t, "/", safeReturnTo(""))
	assert.Equal(t, "/", safeReturnTo("https://evil.example.com/"))
	assert.Equal(t, "/", safeReturnTo("//evil.example.com"))
	assert.Equal(t, "/notes", safeReturnTo("/notes"))
}
