package session

// next reports whether a deferred send holding budget may be attempted again, and the budget
// the retry carries. A zero budget means the call is abandoned.
func (p RetryPolicy) next(budget int) (int, bool) {
	if budget <= 0 {
		return 0, false
	}
	return budget - 1, true
}
