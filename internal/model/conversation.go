package model

import "strings"

// DirectConversationID derives the identifier of a one-on-one thread from
// its two participants. The derivation is symmetric: both sides compute the
// same id regardless of argument order, so no conversation record is needed.
func DirectConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// DirectConversationMembers is the inverse of DirectConversationID. ok is
// false if id is not a direct-conversation identifier.
func DirectConversationMembers(id string) (a, b string, ok bool) {
	rest, found := strings.CutPrefix(id, "dm:")
	if !found {
		return "", "", false
	}
	a, b, ok = strings.Cut(rest, ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
