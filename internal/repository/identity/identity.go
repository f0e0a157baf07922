// Package identity is the mongo-backed store.IdentityStore implementation
// backing trust-on-first-use identity-key pinning, grounded on
// internal/repository/user's collection-wrapper shape.
package identity

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"e2ereceiver/internal/model"
)

type trustRecord struct {
	Address     string `bson:"_id"`
	IdentityKey []byte `bson:"identity_key"`
}

type IdentityRepo struct {
	collection *mongo.Collection
}

func NewIdentityRepo(db *mongo.Database) *IdentityRepo {
	return &IdentityRepo{collection: db.Collection("trusted_identities")}
}

func (r *IdentityRepo) TrustedIdentityKey(ctx context.Context, addr model.Address) ([]byte, error) {
	var rec trustRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.IdentityKey, nil
}

func (r *IdentityRepo) TrustIdentityKey(ctx context.Context, addr model.Address, key []byte) error {
	filter := bson.M{"_id": addr.String()}
	update := bson.M{"$set": bson.M{"identity_key": key}}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}
