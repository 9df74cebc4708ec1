// Package live pushes conversion and matching events to websocket
// subscribers.
//
// Each subscriber has its own send buffer. A subscriber that cannot keep up
// loses frames rather than slowing the hub; frames that arrive while its
// buffer is full are dropped and counted.
package live
