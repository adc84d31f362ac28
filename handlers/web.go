package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/appvault/appvault/internal/config"
	"github.com/appvault/appvault/internal/documents"
	"github.com/appvault/appvault/internal/oidc"
	"github.com/appvault/appvault/internal/sessions"
	"github.com/appvault/appvault/internal/statetoken"
	"github.com/appvault/appvault/internal/users"
	"github.com/appvault/appvault/pkg/logger"
	"github.com/appvault/appvault/pkg/metrics"
	"github.com/appvault/appvault/pkg/middleware"
)

const (
	// stateCookie carries the signed login transaction between /login and
	// /callback. Short-lived; cleared as soon as the callback reads it.
	stateCookie = "appvault_auth_state"
	// accessTokenCookie holds the provider access token for the browser.
	// It is never read back by this service and never echoed in responses.
	accessTokenCookie = "access_token"

	stateTTL = 10 * time.Minute
)

// WebHandler orchestrates the login flow and the per-user document endpoints.
type WebHandler struct {
	cfg         *config.Config
	auth        oidc.Exchanger
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	docsSvc     *documents.Service
}

func NewWebHandler(cfg *config.Config, a oidc.Exchanger, u *users.Service, s *sessions.Service, d *documents.Service) *WebHandler {
	return &WebHandler{cfg: cfg, auth: a, usersSvc: u, sessionsSvc: s, docsSvc: d}
}

// Register wires the routes. The save/data endpoints sit behind the session
// gate; home resolves the session when present but serves anonymously too.
func (h *WebHandler) Register(r *gin.Engine) {
	r.GET("/login", h.Login)
	r.GET("/callback", h.Callback)
	r.GET("/logout", h.Logout)
	r.GET("/healthz", h.Healthz)
	r.GET("/", middleware.OptionalSession(h.sessionsSvc), h.Home)
	r.POST("/save", middleware.SessionAuth(h.sessionsSvc), h.Save)
	r.GET("/data", middleware.SessionAuth(h.sessionsSvc), h.Data)
}

// Login starts the authorization-code flow: fresh state+nonce, signed into a
// transient cookie, browser redirected to the provider.
func (h *WebHandler) Login(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication not configured"})
		return
	}
	state, err := statetoken.NewValue()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	nonce, err := statetoken.NewValue()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	st := statetoken.LoginState{State: state, Nonce: nonce, ReturnTo: safeReturnTo(c.Query("return_to"))}
	signed, err := statetoken.Issue([]byte(h.cfg.Session.Secret), st, stateTTL)
	if err != nil {
		logger.Errorf("failed to sign login state: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, signed, int(stateTTL.Seconds()), "/", "", true, true)
	metrics.LoginsStarted.Inc()
	c.Redirect(http.StatusFound, h.auth.AuthCodeURL(state, nonce))
}

// Callback completes the flow: state cookie must verify and match the query
// parameter, then the code is exchanged and a session created. Every failure
// is a generic 401 with no session and no cookies set.
func (h *WebHandler) Callback(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication not configured"})
		return
	}
	raw, err := c.Cookie(stateCookie)
	if err != nil || raw == "" {
		h.authFailure(c, "callback", "missing state cookie")
		return
	}
	// one-shot: the transaction cookie is cleared whatever happens next
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, "", -1, "/", "", true, true)

	st, err := statetoken.Verify([]byte(h.cfg.Session.Secret), raw)
	if err != nil {
		h.authFailure(c, "callback", "invalid state cookie")
		return
	}
	if s := c.Query("state"); s == "" || s != st.State {
		h.authFailure(c, "callback", "state mismatch")
		return
	}
	if e := c.Query("error"); e != "" {
		h.authFailure(c, "callback", "provider returned error: "+e)
		return
	}
	code := c.Query("code")
	if code == "" {
		h.authFailure(c, "callback", "missing code")
		return
	}

	ts, err := h.auth.Exchange(c.Request.Context(), code, st.Nonce)
	if err != nil {
		logger.Warnf("token exchange failed: %v", err)
		h.authFailure(c, "exchange", "exchange failed")
		return
	}

	u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), ts.Claims)
	if err != nil {
		logger.Errorf("user upsert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if u == nil {
		logger.Errorf("user upsert returned nil user (claims missing 'sub')")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	sid, err := h.sessionsSvc.Create(c.Request.Context(), u.Sub, displayProfile(ts.Claims), h.cfg.Session.TTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sid, int(h.cfg.Session.TTL.Seconds()), "/", "", true, true)
	c.SetCookie(accessTokenCookie, ts.AccessToken, int(ts.ExpiresIn), "/", "", true, true)
	metrics.LoginsCompleted.Inc()

	target := st.ReturnTo
	if target == "" {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

// Logout destroys the current session, expires both cookies and sends the
// browser to the provider's logout endpoint. A request without a session
// cookie still redirects; there is nothing to clean up.
func (h *WebHandler) Logout(c *gin.Context) {
	if sid, err := c.Cookie(middleware.SessionCookie); err == nil && sid != "" {
		if err := h.sessionsSvc.Destroy(c.Request.Context(), sid); err != nil {
			logger.Warnf("failed to destroy session: %v", err)
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", true, true)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", true, true)

	if h.auth == nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.Redirect(http.StatusFound, h.auth.LogoutURL(requestBaseURL(c)+"/"))
}

// Home returns the display profile for the current session, or a null user
// for anonymous visitors. Never tokens, never the session id.
func (h *WebHandler) Home(c *gin.Context) {
	v, ok := c.Get("session")
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	sess := v.(*sessions.Session)
	c.JSON(http.StatusOK, gin.H{"user": sess.Profile, "expires_at": sess.ExpiresAt})
}

// Healthz is a constant liveness probe.
func (h *WebHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Save replaces the caller's document with the posted JSON object.
func (h *WebHandler) Save(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	sub := c.GetString("sub")
	if err := h.docsSvc.Save(c.Request.Context(), sub, payload); err != nil {
		logger.Errorf("document save failed for %s: %v", sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save data"})
		return
	}
	metrics.DocumentsSaved.Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Data saved"})
}

// Data returns the caller's stored document, {} when nothing was saved yet.
func (h *WebHandler) Data(c *gin.Context) {
	sub := c.GetString("sub")
	payload, err := h.docsSvc.Get(c.Request.Context(), sub)
	if err != nil {
		logger.Errorf("document load failed for %s: %v", sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load data"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *WebHandler) authFailure(c *gin.Context, stage, detail string) {
	logger.Debugf("auth failure at %s: %s", stage, detail)
	metrics.AuthFailures.WithLabelValues(stage).Inc()
	c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
}

// displayProfile keeps only the claims the UI needs. Tokens and any other
// provider material stay out of the session snapshot.
func displayProfile(claims map[string]interface{}) map[string]interface{} {
	p := map[string]interface{}{}
	for _, k := range []string{"sub", "name", "nickname", "email", "picture"} {
		if v, ok := claims[k]; ok {
			p[k] = v
		}
	}
	return p
}

// safeReturnTo accepts only same-site paths; anything else falls back to "/".
func safeReturnTo(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

// requestBaseURL reconstructs the external URL of this service for the
// provider's returnTo parameter.
func requestBaseURL(c *gin.Context) string {
	scheme := "https"
	if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host
}
