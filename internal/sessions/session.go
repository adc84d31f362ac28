package sessions

import "time"

// Session is the server-side record behind one authenticated browser.
// ID is the opaque value held by the session cookie; Profile is the display
// claims snapshot taken at login (never raw provider tokens).
type Session struct {
	ID        string                 `bson:"_id" json:"id"`
	Sub       string                 `bson:"sub" json:"sub"`
	Profile   map[string]interface{} `bson:"profile" json:"profile"`
	CreatedAt time.Time              `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time              `bson:"expiresAt" json:"expiresAt"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
