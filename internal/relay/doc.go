// Package relay implements the client side of the relay wire protocol:
// newline-delimited JSON messages over TCP, one request/response pair
// per connection.
package relay
