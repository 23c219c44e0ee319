// Package relay provides the HTTP implementation of domain.RelayClient
// used by the cipherlink CLI to talk to a KDC server.
//
// Requests are JSON over HTTP and carry the bearer token obtained at
// registration. Non-2xx responses come back as *StatusError, which unwraps
// to the domain error of the same class so callers can use errors.Is
// exactly as they would against the in-process services.
package relay
