// Package api is the control surface: a REST service over the generator,
// validator, orchestrator, history and plan stores, plus a WebSocket
// channel streaming execution events.
//
// Every response carries a correlation id taken from the X-Request-ID
// header or minted per request. Errors always serialize as
// {success:false, error:{code, message, details}, request_id}.
package api
