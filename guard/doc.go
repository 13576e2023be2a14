// Package guard moves errors across the boundary between Go and the host.
//
// The host reports errors with an abrupt signal that unwinds to the nearest
// catch point. Go code must never let that signal cross its frames
// unobserved, and must never let a Go panic or error escape into host code.
// A Bridge handles both directions:
//
//	host entry point --signal--> Call --error--> Go code --error--> Boundary --signal--> host
//
// Call runs a host entry point at a fresh catch point and turns a fired
// signal into an *errors.Error of kind host_signaled. The error travels
// through Go as an ordinary value, or by panic with Throw and Catch. At the
// outermost Go frame, Boundary turns any escaping error back into the host
// signal. A host_signaled error replays the original report unchanged.
//
// Invariant violations are programming defects. Catch never recovers them,
// and Boundary reports them to the host at FATAL level.
//
// # States
//
// A Bridge tracks one in-flight condition:
//
//	Normal      -> HostPending  signal captured by Call
//	HostPending -> Raised       converted to a Go error
//	Raised      -> Normal       recovered by Catch
//	Raised      -> ReEntering   handed back to the host by Boundary
//
// Transitions are logged at debug level and reported to the configured
// Observer. A Bridge belongs to one logical thread of execution.
package guard
