// Package openid grounds the Matrix client's OpenID token request/response
// shapes used by the orchestrator's RequestOpenID dispatch (spec §4.4.1,
// §6.3): https://matrix.org/docs/spec/client_server/r0.6.1#id603
package openid

// TokenRequest is issued to the Matrix client to mint a fresh OpenID token
// for the widget's user.
type TokenRequest struct {
	UserID string `json:"userId"`
}

// Token is the credential returned by the Matrix client, cached by
// internal/widget/openidcache and relayed to the widget as
// get_openid's {state:"allowed", ...} payload.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	// ExpiresIn is the token's validity period, in seconds.
	ExpiresIn int64 `json:"expires_in"`
	// MatrixServerName is the homeserver that issued the token.
	MatrixServerName string `json:"matrix_server_name"`
}
