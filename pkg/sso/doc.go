// Package sso implements single sign-on login against OpenID Connect
// and SAML 2.0 identity providers, with just-in-time provisioning.
//
// Each configured provider is mounted under /auth/sso/{provider}. The
// login route redirects the browser to the IdP with a random state, and
// the callback validates the assertion, resolves or creates the local
// account, and mints a regular session token. Provisioned accounts
// always start at the basic USER role; role changes go through user
// management like any other account.
package sso
