// Package realtime pushes domain events to connected users over
// websockets.
//
// Hub is the server side and implements domain.Publisher. A user may hold
// several connections; every one of them gets every event addressed to
// the user. Each connection has a bounded outbound queue drained by its
// own writer goroutine, so a slow client never blocks a publisher: when
// the queue is full the connection is dropped.
//
// Listen is the client side. It dials the hub, decodes each envelope into
// one of the domain event variants and hands it to a callback.
package realtime
