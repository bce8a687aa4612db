// ABOUTME: Package documentation for the HTTP transport layer
// ABOUTME: Describes the REST surface and SSE framing

// Package web maps HTTP requests onto the store, auth, and chat services.
//
// Chat turns stream back as Server-Sent Events: each frame is one
// "data: <JSON>\n\n" record holding a text increment, an error notice, or
// the terminal done event with token usage. Frames are flushed as produced
// and a client disconnect cancels the in-flight turn through the request
// context.
//
// Validation, authorization, and unknown-conversation failures are rejected
// with a plain JSON error before the stream opens; faults after that point
// arrive in-band as error frames.
package web
