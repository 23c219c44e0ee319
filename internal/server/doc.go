// Package server exposes the KDC services over REST and websockets.
//
// Routes:
//
//	POST /users/register                  public; returns a bearer token
//	GET  /users/{id}                      public
//	POST /contacts/link                   {peerId}
//	POST /kdc/request-session-key         {peerId}
//	GET  /kdc/session-info/{id}
//	GET  /kdc/current/{peerId}
//	GET  /kdc/broadcast-key
//	POST /pfs/start                       {initiatorId?, peerId?}
//	POST /pfs/complete                    {pfsSessionId, clientEphemeralPublicKey}
//	POST /lifecycle/rotate-session-key    {sessionId}
//	POST /lifecycle/revoke-session-key    {sessionId}
//	POST /lifecycle/destroy-session-key   {sessionId}
//	GET  /lifecycle/key-events            ?sessionId=&source=&limit=&offset=
//	GET  /blockchain/chain
//	GET  /blockchain/validate
//	POST /blockchain/add-block            {messageHash, senderId?, receiverId?}
//	POST /messages
//	GET  /messages/history                ?peerId=&limit=
//	GET  /ws                              realtime event stream
//	GET  /metrics                         prometheus, public
//	GET  /healthz                         public
//
// Everything not marked public needs "Authorization: Bearer <token>".
// Errors are JSON {"error": "..."} with the status given by StatusFor.
package server
