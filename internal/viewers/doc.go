// Package viewers keeps the session's viewer credentials and expands rule
// groups into concrete viewer names.
//
// A Registry is built once per session from the owner, the plex.tv shares,
// and the configured managed users, and serves as the update orchestrator's
// token store. Members applies the $ALL expansion, which never includes the
// owner unless the group names the owner explicitly. The digest helpers log
// the startup overview operators rely on to spot missing or shared tokens.
package viewers
