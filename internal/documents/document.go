package documents

import "time"

// Document is the single persistent JSON document a user owns. Payload holds
// the canonical JSON text; the store never interprets it.
type Document struct {
	Sub       string    `bson:"sub" json:"sub"`
	Payload   string    `bson:"payload" json:"payload"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
