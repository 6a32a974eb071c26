package workspace

import (
	"context"
	"errors"
	"time"

	"PNotepad/data/database"
	"PNotepad/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepo struct {
	db *mongo.Database
}

var _ database.Table = (*MongoRepo)(nil)

func NewMongoRepo(db *mongo.Database) *MongoRepo { return &MongoRepo{db: db} }

func (r *MongoRepo) GetTableName() string { return "workspace" }

func (r *MongoRepo) Collection() *mongo.Collection {
	return r.db.Collection(r.GetTableName())
}

// EnsureIndexes creates the owner listing index.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create workspace index")
	}
	return nil
}

func (r *MongoRepo) Create(ctx context.Context, w *Workspace) error {
	if _, err := r.Collection().InsertOne(ctx, w); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrBadRequest.WrapMsg("workspace exists", "id", w.ID)
		}
		return errs.ErrStore.WrapCause(err, false, "insert workspace", "id", w.ID)
	}
	return nil
}

func (r *MongoRepo) Get(ctx context.Context, id string) (*Workspace, error) {
	var w Workspace
	err := r.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	if err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "find workspace", "id", id)
	}
	return &w, nil
}

func (r *MongoRepo) ListByOwner(ctx context.Context, owner string) ([]*Workspace, error) {
	cur, err := r.Collection().Find(ctx, bson.M{"owner": owner},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "list workspaces", "owner", owner)
	}
	out := make([]*Workspace, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "decode workspaces", "owner", owner)
	}
	return out, nil
}

func (r *MongoRepo) SaveContent(ctx context.Context, id, content string, at time.Time) error {
	return r.set(ctx, id, bson.M{"content": content, "updated_at": at})
}

func (r *MongoRepo) SetLive(ctx context.Context, id string, live bool, at time.Time) error {
	return r.set(ctx, id, bson.M{"live": live, "updated_at": at})
}

func (r *MongoRepo) set(ctx context.Context, id string, fields bson.M) error {
	res, err := r.Collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return errs.ErrStore.WrapCause(err, true, "update workspace", "id", id)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	return nil
}
