// Package session assembles the public surface of a synchronization
// session: a Client on the initiating side and a Host on the responding
// side, joined by a transport. Routines and callback signatures are
// registered with their directives up front; invocation then runs the
// capture and write-back legs automatically.
package session
