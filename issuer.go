package vauth

import (
	"context"
	"fmt"
	"net/url"
)

// IssuerIdentification appends the iss parameter to authorization responses
// (RFC 9207), letting clients detect mix-up attacks across authorization
// servers.
type IssuerIdentification struct {
	issuer string
}

// NewIssuerIdentification validates the issuer URL once, at construction. A
// malformed issuer is a deployment error that must fail startup, not surface
// per request.
func NewIssuerIdentification(issuer string) (*IssuerIdentification, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("issuer must be an absolute URL with a host, got %q", issuer)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("issuer must use http or https, got %q", issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("issuer must not carry a query or fragment, got %q", issuer)
	}
	return &IssuerIdentification{issuer: issuer}, nil
}

// Issuer returns the validated issuer identifier.
func (p *IssuerIdentification) Issuer() string {
	return p.issuer
}

// ProcessAuthorizeResponse sets the iss parameter on the outgoing response.
func (p *IssuerIdentification) ProcessAuthorizeResponse(_ context.Context, resp *AuthorizeResponse) error {
	if resp.ExtraParams == nil {
		resp.ExtraParams = make(map[string]string)
	}
	resp.ExtraParams["iss"] = p.issuer
	return nil
}
