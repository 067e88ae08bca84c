// Package echo exposes the authorization server engine over HTTP using the
// Echo framework. Handlers parse and write the wire format; every protocol
// decision lives in the engine services.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	vauth "go.velum.dev/vauth"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// OAuth2API holds the engine services the handlers delegate to.
type OAuth2API struct {
	authorize  *vauth.AuthorizeService
	grants     *vauth.GrantService
	devices    vauth.DeviceCodeManager
	par        *vauth.PARService
	extensions *vauth.ExtensionManager
	metadata   *vauth.ServerMetadata
	maxPARBody int64
	logger     applog.Logger
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(
	authorize *vauth.AuthorizeService,
	grants *vauth.GrantService,
	devices vauth.DeviceCodeManager,
	par *vauth.PARService,
	extensions *vauth.ExtensionManager,
	metadata *vauth.ServerMetadata,
	maxPARBody int64,
	logger applog.Logger,
) *OAuth2API {
	return &OAuth2API{
		authorize:  authorize,
		grants:     grants,
		devices:    devices,
		par:        par,
		extensions: extensions,
		metadata:   metadata,
		maxPARBody: maxPARBody,
		logger:     logger,
	}
}

// RegisterRoutes registers the OAuth2 routes, including every route
// contributed by registered extensions.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", oa.AuthorizeHandler)
	e.POST("/oauth2/token", oa.TokenHandler)
	e.POST("/oauth2/par", oa.PushedAuthorizationHandler)
	e.POST("/oauth2/device_authorization", oa.DeviceAuthorizationHandler)
	e.POST("/oauth2/device/approve", oa.DeviceApproveHandler)
	e.POST("/oauth2/device/deny", oa.DeviceDenyHandler)
	e.POST("/oauth2/revoke", oa.RevokeHandler)

	e.GET("/.well-known/oauth-authorization-server", oa.MetadataHandler)

	for _, route := range oa.extensions.Routes() {
		e.Add(route.Method, route.Path, echo.WrapHandler(route.Handler))
	}
}

// AuthorizeHandler handles OAuth 2.0 authorization requests. The user's
// identity arrives from the resource owner session established by the
// deployment's login front end; this engine only checks it is present.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := &vauth.AuthorizeRequest{
		ResponseType:        c.QueryParam("response_type"),
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		RequestURI:          c.QueryParam("request_uri"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
	}

	ctx := c.Request().Context()

	reqObj, err := oa.authorize.Authorize(ctx, req)
	if err != nil {
		return oa.writeError(c, err)
	}

	userID := authenticatedUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":             "login_required",
			"error_description": "no authenticated user session",
		})
	}

	resp, err := oa.authorize.Grant(ctx, reqObj, userID)
	if err != nil {
		return oa.writeError(c, err)
	}

	location, err := resp.RedirectLocation()
	if err != nil {
		return oa.writeError(c, err)
	}

	return c.Redirect(http.StatusFound, location)
}

// TokenHandler handles OAuth2 token requests for every supported grant type.
// Grant dispatch, client authentication and extension processing all happen in
// the grant service; this handler only translates the wire format.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	req := &vauth.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
		DeviceCode:   c.FormValue("device_code"),
		Scope:        c.FormValue("scope"),
	}

	resp, err := oa.grants.Exchange(c.Request().Context(), req)
	if err != nil {
		return oa.writeError(c, err)
	}

	oa.logger.Info(c.Request().Context(), "token issued", map[string]any{
		"client_id":  req.ClientID,
		"grant_type": req.GrantType,
		"expires_in": resp.ExpiresIn,
	})

	return c.JSON(http.StatusOK, resp)
}

// PushedAuthorizationHandler implements the PAR endpoint (RFC 9126). The body
// size limit applies before form parsing so an oversized push costs nothing.
func (oa *OAuth2API) PushedAuthorizationHandler(c echo.Context) error {
	if oa.maxPARBody > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, oa.maxPARBody)
	}

	params, err := c.FormParams()
	if err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed request body"))
	}

	resp, err := oa.par.Push(c.Request().Context(), params)
	if err != nil {
		return oa.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, resp)
}

// DeviceAuthorizationHandler starts the device authorization grant (RFC 8628).
func (oa *OAuth2API) DeviceAuthorizationHandler(c echo.Context) error {
	clientID := c.FormValue("client_id")
	if clientID == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("client_id is required"))
	}

	resp, err := oa.grants.BeginDeviceAuthorization(c.Request().Context(), clientID, c.FormValue("scope"))
	if err != nil {
		return oa.writeError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// DeviceApproveHandler records the user's consent for a user_code.
func (oa *OAuth2API) DeviceApproveHandler(c echo.Context) error {
	userCode := c.FormValue("user_code")
	if userCode == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("user_code is required"))
	}

	userID := authenticatedUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login_required"})
	}

	if _, err := oa.devices.AuthorizeDeviceCode(c.Request().Context(), userCode, userID); err != nil {
		return oa.writeError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "authorized"})
}

// DeviceDenyHandler records the user's refusal for a user_code.
func (oa *OAuth2API) DeviceDenyHandler(c echo.Context) error {
	userCode := c.FormValue("user_code")
	if userCode == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("user_code is required"))
	}

	if _, err := oa.devices.DenyDeviceCode(c.Request().Context(), userCode); err != nil {
		return oa.writeError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "denied"})
}

// RevokeHandler handles token revocation requests (RFC 7009). Revocation of an
// unknown token still returns 200 OK, so the endpoint cannot be used to probe
// which token values exist.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	token := c.FormValue("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("token parameter is required"))
	}

	req := &vauth.TokenRequest{
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
	}

	if err := oa.grants.Revoke(c.Request().Context(), req, token, c.FormValue("token_type_hint")); err != nil {
		var oauthErr *serrors.OAuth2Error
		if errors.As(err, &oauthErr) && oauthErr.Code == serrors.InvalidClient {
			return c.JSON(http.StatusUnauthorized, oauthErr)
		}
		oa.logger.Error(c.Request().Context(), "failed to revoke token", err, nil)
	}

	return c.JSON(http.StatusOK, echo.Map{})
}

// MetadataHandler serves the authorization server metadata document (RFC 8414).
func (oa *OAuth2API) MetadataHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.metadata)
}

// authenticatedUser extracts the resource owner identity placed on the request
// by the deployment's session middleware.
func authenticatedUser(c echo.Context) string {
	if userID, ok := c.Get("user_id").(string); ok {
		return userID
	}
	return ""
}

// writeError maps engine errors to RFC-shaped JSON responses. Device flow
// sentinels become their wire error codes with HTTP 400, as clients poll on
// the response body, not the status.
func (oa *OAuth2API) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, serrors.ErrAuthorizationPending):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "authorization_pending"})
	case errors.Is(err, serrors.ErrSlowDown):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slow_down"})
	case errors.Is(err, serrors.ErrDeviceFlowAccessDenied):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "access_denied"})
	case errors.Is(err, serrors.ErrDeviceFlowTokenExpired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "expired_token"})
	case errors.Is(err, serrors.ErrUserCodeNotFound), errors.Is(err, serrors.ErrCannotApproveDeviceAuth):
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("user_code is invalid or no longer pending"))
	}

	var extErr *serrors.ExtensionError
	if errors.As(err, &extErr) {
		return c.JSON(http.StatusBadRequest, extErr)
	}

	var oauthErr *serrors.OAuth2Error
	if errors.As(err, &oauthErr) {
		status := http.StatusBadRequest
		if oauthErr.Code == serrors.InvalidClient {
			status = http.StatusUnauthorized
		}
		return c.JSON(status, oauthErr)
	}

	oa.logger.Error(c.Request().Context(), "request failed", err, nil)
	return c.JSON(http.StatusInternalServerError, serrors.NewServerError("internal error"))
}
