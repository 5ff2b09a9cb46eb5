/*
Package authsdk is the client side of a Keycloak realm for a public client:
the interactive Authorization Code + PKCE login and the refresh-token grant.

# Endpoints

Keycloak exposes both endpoints under the realm issuer:

	{BaseURL}/realms/{Realm}/protocol/openid-connect/auth
	{BaseURL}/realms/{Realm}/protocol/openid-connect/token

# Interactive login

Login is a one-shot state machine:

  1. generate a PKCE verifier (64 random bytes, base64url) with its S256
     challenge, and a random state value
  2. build the authorization URL
  3. hand it to a WebAuthFlow and wait for the redirect URL
  4. reject the redirect if the state differs, if it carries error or
     error_description, or if there is no code
  5. exchange code + verifier + redirect URI at the token endpoint
  6. reject a non-success response, or a success without access_token

With the loopback flow:

	client := authsdk.NewClient(authsdk.Config{
		BaseURL:  "http://localhost:8080",
		Realm:    "test",
		ClientID: "extension-client",
	}, authsdk.WithWebAuthFlow(&authsdk.LoopbackFlow{Port: 3000}))

	tokens, err := client.Login(ctx)

LoopbackFlow serves the redirect on 127.0.0.1 and opens the system browser.
Embedders with their own browser surface implement WebAuthFlow themselves.

# Refresh

	tokens, err := client.Refresh(ctx, refreshToken)

Refresh never prompts. A rejected refresh token is reported like any other
failure; callers decide whether to discard the session.

# Errors

  - *OAuth2Error: the provider refused (token endpoint or redirect). Message
    prefers error_description, then error, then a generic text.
  - *FlowError: the login itself went wrong locally (missing callback, state
    mismatch, missing code, no access token). Compare with errors.Is against
    ErrStateMismatch and friends.
  - *TransportError: the token endpoint could not be reached.
*/
package authsdk
