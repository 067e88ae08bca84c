package vauth

// ServerMetadata is the OAuth 2.0 authorization server metadata document
// (RFC 8414) this engine serves at /.well-known/oauth-authorization-server.
type ServerMetadata struct {
	Issuer                                     string              `json:"issuer"`
	AuthorizationEndpoint                      string              `json:"authorization_endpoint"`
	TokenEndpoint                              string              `json:"token_endpoint"`
	PushedAuthorizationRequestEndpoint         string              `json:"pushed_authorization_request_endpoint,omitempty"`
	DeviceAuthorizationEndpoint                string              `json:"device_authorization_endpoint,omitempty"`
	RevocationEndpoint                         string              `json:"revocation_endpoint,omitempty"`
	ScopesSupported                            []string            `json:"scopes_supported,omitempty"`
	ResponseTypesSupported                     []string            `json:"response_types_supported"`
	GrantTypesSupported                        []string            `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported          []string            `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported              []string            `json:"code_challenge_methods_supported"`
	AuthorizationResponseIssParameterSupported bool                `json:"authorization_response_iss_parameter_supported"`
	Extensions                                 []ExtensionMetadata `json:"extensions,omitempty"`
}

// NewServerMetadata assembles the discovery document for an issuer. Endpoint
// paths are fixed by the HTTP layer; extensions contribute their descriptions
// through the manager.
func NewServerMetadata(issuer string, scopes []string, extensions *ExtensionManager) *ServerMetadata {
	return &ServerMetadata{
		Issuer:                             issuer,
		AuthorizationEndpoint:              issuer + "/oauth2/authorize",
		TokenEndpoint:                      issuer + "/oauth2/token",
		PushedAuthorizationRequestEndpoint: issuer + "/oauth2/par",
		DeviceAuthorizationEndpoint:        issuer + "/oauth2/device_authorization",
		RevocationEndpoint:                 issuer + "/oauth2/revoke",
		ScopesSupported:                    scopes,
		ResponseTypesSupported:             []string{"code"},
		GrantTypesSupported: []string{
			GrantTypeAuthorizationCode,
			GrantTypeRefreshToken,
			GrantTypeClientCredentials,
			GrantTypeDeviceCode,
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		CodeChallengeMethodsSupported: []string{
			CodeChallengeMethodPlain,
			CodeChallengeMethodS256,
		},
		AuthorizationResponseIssParameterSupported: true,
		Extensions: extensions.Metadata(),
	}
}
