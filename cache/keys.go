package cache

// Key builders for the ephemeral record table in spec.md §3. Centralized
// here so every engine constructs the same key for the same concept.

func UserKey(id string) string              { return "user:" + id }
func LoginAttemptsKey(email string) string  { return "login_attempts:" + email }
func TokenFamilyKey(familyID string) string { return "token_family:" + familyID }
func SessionMetaKey(sessionID string) string { return "session_meta:" + sessionID }
func CSRFKey(token string) string           { return "csrf:" + token }
func OAuthStateKey(nonce string) string     { return "oauth:state:" + nonce }

// TokenFamilyPattern matches every token_family key. The sweeper does not
// scan these keys (spec.md §9 open question 7, resolved in DESIGN.md);
// family heads expire through their own TTL.
const TokenFamilyPattern = "token_family:*"
