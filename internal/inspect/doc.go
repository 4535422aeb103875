// Package inspect implements the request inspection endpoint.
//
// The endpoint accepts any request, pulls the bearer token out of the
// Authorization header and renders an HTML report of the request metadata
// together with the token's decoded payload.
//
// Decoding is display only. Signatures, expiry and issuer are never checked
// and nothing in the decoded claims is used to make an access decision.
package inspect
