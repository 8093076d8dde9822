// Package cli implements grantctl, an operator client for the grantd permission API.
//
//	grantctl get   -principal B -resolved
//	grantctl set   -principal B -grant action_delete_lead -revoke nav_sales_quotes -reason "ticket 42"
//	grantctl reset -principal B
//	grantctl audit -principal B -limit 10
//	grantctl keys
//
// Every command takes -server and either -as/-email (header authentication) or -token
// (OIDC). GRANT_SERVER, GRANT_ACTOR, GRANT_ACTOR_EMAIL and GRANT_TOKEN provide defaults.
package cli
