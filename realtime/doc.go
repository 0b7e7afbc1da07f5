// Package realtime delivers formatted notification events to a recipient's
// live connection.
//
// The engine only needs a Publish capability; the actual transport
// (WebSocket, SSE, socket layer) is an external collaborator that consumes
// either the in-process Hub or a Redis pub/sub channel. Publication is
// fire-and-forget: a missed live event is acceptable because the
// notification record remains queryable through the list API.
package realtime
