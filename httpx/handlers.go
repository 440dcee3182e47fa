package httpx

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jfellner/trailgate/auth"
)

// AuthHandlers exposes the authentication service over HTTP.
type AuthHandlers struct {
	svc *auth.Service
	mw  *auth.Middleware
}

func NewAuthHandlers(svc *auth.Service, mw *auth.Middleware) (*AuthHandlers, error) {
	if svc == nil {
		return nil, errors.New("httpx: auth handlers require a service")
	}
	if mw == nil {
		return nil, errors.New("httpx: auth handlers require the auth middleware")
	}
	return &AuthHandlers{svc: svc, mw: mw}, nil
}

// Register mounts the auth routes under /api/v1/auth.
func (h *AuthHandlers) Register(e *Echo) {
	guarded := AuthMiddleware(h.mw)
	NewRouter(e, "/api/v1/auth").
		POST("/signup", h.Signup).
		POST("/login", h.Login).
		POST("/forgot-password", h.ForgotPassword).
		PATCH("/reset-password/:token", h.ResetPassword).
		PATCH("/change-password", h.ChangePassword, guarded).
		GET("/me", h.Me, guarded)
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type principalEnvelope struct {
	Principal auth.PrincipalView `json:"principal"`
}

type authResponse struct {
	Status string             `json:"status"`
	Token  string             `json:"token,omitempty"`
	Data   *principalEnvelope `json:"data,omitempty"`
}

func successResponse(token string, p *auth.Principal) authResponse {
	resp := authResponse{Status: "success", Token: token}
	if p != nil {
		resp.Data = &principalEnvelope{Principal: p.View()}
	}
	return resp
}

// Signup registers a new standard principal and logs it in.
func (h *AuthHandlers) Signup(c Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return HTTPError(StatusBadRequest, "malformed request body")
	}
	p, token, err := h.svc.Signup(c.Request().Context(), auth.SignupInput{
		Name:          req.Name,
		Email:         req.Email,
		Secret:        []byte(req.Password),
		SecretConfirm: []byte(req.PasswordConfirm),
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(StatusCreated, successResponse(token, &p))
}

// Login exchanges credentials for a token.
func (h *AuthHandlers) Login(c Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return HTTPError(StatusBadRequest, "malformed request body")
	}
	p, token, err := h.svc.Login(c.Request().Context(), req.Email, []byte(req.Password))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(StatusOK, successResponse(token, &p))
}

// ForgotPassword starts the reset flow. Unknown emails get the same
// acknowledgment as known ones so the endpoint cannot be used to enumerate
// accounts.
func (h *AuthHandlers) ForgotPassword(c Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return HTTPError(StatusBadRequest, "malformed request body")
	}
	err := h.svc.RequestReset(c.Request().Context(), req.Email)
	if err != nil && !errors.Is(err, auth.ErrNotFound) {
		return toHTTPError(err)
	}
	return c.JSON(StatusOK, map[string]string{
		"status":  "success",
		"message": "if that account exists, a reset token has been sent",
	})
}

// ResetPassword redeems a reset token for a new password and session.
func (h *AuthHandlers) ResetPassword(c Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return HTTPError(StatusBadRequest, "malformed request body")
	}
	p, token, err := h.svc.RedeemReset(c.Request().Context(), c.Param("token"),
		[]byte(req.Password), []byte(req.PasswordConfirm))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(StatusOK, successResponse(token, &p))
}

// ChangePassword rotates the authenticated principal's password.
func (h *AuthHandlers) ChangePassword(c Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return HTTPError(StatusUnauthorized, "unauthenticated")
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return HTTPError(StatusBadRequest, "malformed request body")
	}
	updated, token, err := h.svc.ChangeSecret(c.Request().Context(), p.ID,
		[]byte(req.CurrentPassword), []byte(req.Password), []byte(req.PasswordConfirm))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(StatusOK, successResponse(token, &updated))
}

// Me returns the authenticated principal.
func (h *AuthHandlers) Me(c Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return HTTPError(StatusUnauthorized, "unauthenticated")
	}
	return c.JSON(StatusOK, map[string]any{
		"status": "success",
		"data":   principalEnvelope{Principal: p.View()},
	})
}

// toHTTPError maps the auth error taxonomy onto status codes. Credential and
// token failures keep constant, low-information messages.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return HTTPError(StatusUnauthorized, "incorrect email or password")
	case errors.Is(err, auth.ErrUnauthenticated):
		return HTTPError(StatusUnauthorized, "unauthenticated")
	case errors.Is(err, auth.ErrForbidden):
		return HTTPError(StatusForbidden, "you do not have permission to perform this action")
	case errors.Is(err, auth.ErrInvalidResetToken):
		return HTTPError(StatusBadRequest, "token is invalid or has expired")
	case errors.Is(err, auth.ErrEmailInUse):
		return HTTPError(StatusConflict, "email already in use")
	case errors.Is(err, auth.ErrValidation):
		return HTTPError(StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		return HTTPError(StatusNotFound, "not found")
	case errors.Is(err, auth.ErrDelivery):
		return HTTPError(StatusInternalError, "could not send the reset token, try again later")
	default:
		return HTTPError(StatusInternalError, http.StatusText(StatusInternalError))
	}
}

// AuthErrorHandler renders errors in the API's {status, message} envelope.
// 4xx codes read as "fail", everything else as "error".
func AuthErrorHandler(err error, c echo.Context) {
	code := StatusInternalError
	msg := http.StatusText(code)
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if str, ok := he.Message.(string); ok {
			msg = str
		}
	}
	status := "error"
	if code >= 400 && code < 500 {
		status = "fail"
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"status": status, "message": msg})
	}
}
