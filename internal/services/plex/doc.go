// Package plex talks to a Plex Media Server and plex.tv on behalf of the sync
// engine.
//
// Client reads library sections, items, children, and the streams of an
// item's first media part using the owner token, and writes a viewer's
// default audio and subtitle streams using that viewer's own token. Server
// responses are decoded as XML. Metadata reads share a rate limiter so large
// libraries do not flood the server. Failed calls return *StatusError, which
// exposes the HTTP status to the update orchestrator.
package plex
