package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/guard"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
	"github.com/gin-gonic/gin"
)

// envelope is the success body of every endpoint.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{StatusCode: status, Data: data, Message: message, Success: status < http.StatusBadRequest})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// statusFor maps a service error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrorConflict):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func failWith(c *gin.Context, err error) {
	fail(c, statusFor(err), common.Message(err, users.MsgInternal))
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		fail(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

type registerRequest struct {
	UserName string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.sessions.Register(c.Request.Context(), req.UserName, req.Email, req.Password)
	if err != nil {
		failWith(c, err)
		return
	}

	respond(c, http.StatusCreated, user, users.MsgRegistered)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// unknown accounts look like a wrong password
		if errors.Is(err, common.ErrorNotFound) {
			fail(c, http.StatusUnauthorized, users.MsgIncorrectPassword)
			return
		}
		failWith(c, err)
		return
	}

	h.setTokenCookies(c, res.AccessToken, res.RefreshToken)
	respond(c, http.StatusOK, gin.H{
		"user":         res.User,
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
	}, users.MsgLoggedIn)
}

func (h *handler) logout(c *gin.Context) {
	user, ok := guard.UserFromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, guard.MsgNoToken)
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), user.ID); err != nil {
		fail(c, http.StatusInternalServerError, users.MsgLogoutFailed)
		return
	}

	h.clearTokenCookies(c)
	respond(c, http.StatusOK, gin.H{}, users.MsgLoggedOut)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *handler) refresh(c *gin.Context) {
	presented, _ := c.Cookie(common.RefreshTokenCookie)
	if presented == "" {
		var req refreshRequest
		if !bindJSON(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	pair, err := h.sessions.RefreshToken(c.Request.Context(), presented)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, common.ErrorInternal) {
			status = http.StatusInternalServerError
		}
		fail(c, status, common.Message(err, users.MsgInternal))
		return
	}

	h.setTokenCookies(c, pair.AccessToken, pair.RefreshToken)
	respond(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, users.MsgAccessTokenRefreshed)
}

func (h *handler) me(c *gin.Context) {
	user, _ := guard.UserFromContext(c.Request.Context())
	respond(c, http.StatusOK, user, "")
}

func (h *handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) readyz(c *gin.Context) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(c.Request.Context()); err != nil {
			h.log.Warn(c.Request.Context(), "not ready", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// authenticate is the guard in middleware form.
func (h *handler) authenticate(c *gin.Context) {
	cookie, _ := c.Cookie(common.AccessTokenCookie)
	token := guard.TokenFromRequest(cookie, c.GetHeader("Authorization"))

	user, err := h.guard.Authenticate(c.Request.Context(), token)
	if err != nil {
		failWith(c, err)
		return
	}

	c.Request = c.Request.WithContext(guard.ContextWithUser(c.Request.Context(), user))
	c.Next()
}

// Session cookies; the tokens carry their own expiry.
func (h *handler) setTokenCookies(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.AccessTokenCookie, access, 0, "/", "", h.opts.Production, true)
	c.SetCookie(common.RefreshTokenCookie, refresh, 0, "/", "", h.opts.Production, true)
}

func (h *handler) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.AccessTokenCookie, "", -1, "/", "", h.opts.Production, true)
	c.SetCookie(common.RefreshTokenCookie, "", -1, "/", "", h.opts.Production, true)
}
