// Package group is the mongo-backed store.RosterStore implementation,
// grounded on internal/repository/user's single-collection FindOne/
// InsertOne pattern and generalized to upsert semantics for group
// reconciliation (§4.7).
package group

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"e2ereceiver/internal/model"
)

type GroupRepo struct {
	collection *mongo.Collection
}

func NewGroupRepo(db *mongo.Database) *GroupRepo {
	return &GroupRepo{collection: db.Collection("groups")}
}

func (r *GroupRepo) GetGroup(ctx context.Context, groupID []byte) (*model.Group, error) {
	filter := bson.M{"_id": groupID}

	var g model.Group
	err := r.collection.FindOne(ctx, filter).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepo) SaveGroup(ctx context.Context, g *model.Group) error {
	filter := bson.M{"_id": g.ID}
	update := bson.M{"$set": bson.M{
		"name":    g.Name,
		"avatar":  g.Avatar,
		"members": g.Members,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID []byte) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": groupID})
	return err
}
