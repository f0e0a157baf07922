package model

import "go.mongodb.org/mongo-driver/bson/primitive"

// User is the receiver's own local identity: its long-term identity key and
// signed prekey, persisted so a restart does not mint a new identity.
type User struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Name    string             `bson:"name"`
	IKPriv  []byte             `bson:"ik_priv"`
	SPKPriv []byte             `bson:"spk_priv"`
}
