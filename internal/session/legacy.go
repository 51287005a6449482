package session

// DetectLegacy reports whether store still holds credentials from before
// cookie sessions existed. It only reads.
func DetectLegacy(store Store) bool {
	if _, ok := store.Get(KeyLegacyToken); ok {
		return true
	}
	_, ok := store.Get(KeyLegacyUserID)
	return ok
}
