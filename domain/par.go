package domain

// PARRequest is a pushed authorization request (RFC 9126): the full parameter
// set of an authorization request, registered ahead of time and referenced
// later through an opaque request_uri.
type PARRequest struct {
	ResponseType        string `json:"response_type" redis:"response_type"`
	ClientID            string `json:"client_id" redis:"client_id"`
	RedirectURI         string `json:"redirect_uri" redis:"redirect_uri"`
	Scope               string `json:"scope,omitempty" redis:"scope"`
	State               string `json:"state,omitempty" redis:"state"`
	CodeChallenge       string `json:"code_challenge,omitempty" redis:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty" redis:"code_challenge_method"`
}

// AuthorizationRequestObject is the validated, in-flight representation of an
// authorization request. The CSRF token binds the rendered consent step to the
// session; it is freshly generated per request and never reused, not even when
// the request was reconstructed from PAR storage.
type AuthorizationRequestObject struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope,omitempty"`
	State               string `json:"state,omitempty"`
	CSRFToken           string `json:"-"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}
