// Package conversation implements the finite-state conversation engine:
// a closed set of named states, ordered per-state transition rules with
// deterministic input matching, a typed per-chat session store, and
// per-session serialized dispatch with idle-timeout expiry.
package conversation
