package cache

// KeyCartView is the cache key of a cart's rendered view.
func KeyCartView(cartID string) string {
	return "cart:view:" + cartID
}

// KeyMergeLock serialises guest-to-user merges for one session.
func KeyMergeLock(sessionID string) string {
	return "cart:merge:" + sessionID
}
