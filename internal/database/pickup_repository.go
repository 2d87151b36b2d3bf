// internal/database/pickup_repository.go
package database

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pickup-map-api-server/internal/geo"
	"pickup-map-api-server/internal/models"
)

const pickupCollection = "pickups"

var (
	ErrPickupNotFound    = eris.New("database: pickup not found")
	ErrInvalidTransition = eris.New("database: pickup is not pending review")
)

type PickupRepository struct {
	collection *mongo.Collection
}

func NewPickupRepository(db *mongo.Database) *PickupRepository {
	return &PickupRepository{collection: db.Collection(pickupCollection)}
}

// EnsureIndexes creates the indexes the review list and map queries rely on.
func (r *PickupRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}}},
		{Keys: bson.D{{Key: "geohash", Value: 1}}},
	})
	if err != nil {
		return eris.Wrap(err, "database: create pickup indexes")
	}
	return nil
}

// Create inserts p and fills in its ObjectID.
func (r *PickupRepository) Create(ctx context.Context, p *models.Pickup) error {
	result, err := r.collection.InsertOne(ctx, p)
	if err != nil {
		return eris.Wrap(err, "database: insert pickup")
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid
	}
	return nil
}

func (r *PickupRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Pickup, error) {
	var p models.Pickup
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPickupNotFound
		}
		return nil, eris.Wrap(err, "database: find pickup")
	}
	return &p, nil
}

// ListByStatus returns pickups with the given status, newest first.
func (r *PickupRepository) ListByStatus(ctx context.Context, status models.PickupStatus, limit int64) ([]models.Pickup, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, bson.M{"status": status}, opts)
}

// ListApprovedInBBox returns approved pickups inside the viewport, newest first.
func (r *PickupRepository) ListApprovedInBBox(ctx context.Context, bbox geo.BBox, limit int64) ([]models.Pickup, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, ApprovedInBBoxFilter(bbox), opts)
}

func (r *PickupRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Pickup, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, eris.Wrap(err, "database: query pickups")
	}
	defer cursor.Close(ctx)

	var pickups []models.Pickup
	if err := cursor.All(ctx, &pickups); err != nil {
		return nil, eris.Wrap(err, "database: decode pickups")
	}
	if pickups == nil {
		pickups = []models.Pickup{}
	}
	return pickups, nil
}

// ApprovedInBBoxFilter builds the query for approved pickups inside bbox,
// splitting the longitude test when the box wraps the antimeridian.
func ApprovedInBBoxFilter(bbox geo.BBox) bson.M {
	filter := bson.M{
		"status":   models.StatusApproved,
		"latitude": bson.M{"$gte": bbox.MinLat, "$lte": bbox.MaxLat},
	}
	if bbox.CrossesAntimeridian() {
		filter["$or"] = bson.A{
			bson.M{"longitude": bson.M{"$gte": bbox.MinLng}},
			bson.M{"longitude": bson.M{"$lte": bbox.MaxLng}},
		}
	} else {
		filter["longitude"] = bson.M{"$gte": bbox.MinLng, "$lte": bbox.MaxLng}
	}
	return filter
}

// Review moves a pending pickup to next. The status check and the write are a
// single conditional update, so concurrent reviews of one pickup cannot both
// succeed.
func (r *PickupRepository) Review(ctx context.Context, id primitive.ObjectID, next models.PickupStatus, reviewer string, at time.Time) (*models.Pickup, error) {
	if !models.StatusPending.CanTransitionTo(next) {
		return nil, eris.Wrapf(ErrInvalidTransition, "cannot move to %q", next)
	}

	filter := bson.M{"_id": id, "status": models.StatusPending}
	update := bson.M{"$set": bson.M{
		"status":      next,
		"reviewed_at": at,
		"reviewed_by": reviewer,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Pickup
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, eris.Wrap(err, "database: review pickup")
	}

	// Nothing matched: either the id is unknown or it was already reviewed.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}
