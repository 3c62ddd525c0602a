package management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sieve/internal/constants"
	"sieve/internal/filtering"
	pkgerrors "sieve/pkg/errors"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
)

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		collection: db.Collection(constants.MongoFilterSetsCollection),
	}
}

func observeMongo(operation string, start time.Time, err error) {
	metrics.ObserveDatabaseQuery("management", "mongodb", operation, time.Since(start), err)
}

func (r *mongoRepository) CreateFilterSet(ctx context.Context, set *models.FilterSet) (err error) {
	start := time.Now()
	defer func() { observeMongo("create_filter_set", start, err) }()

	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	set.CreatedAt = now
	set.UpdatedAt = now

	doc, err := filtering.NewFilterSetDocument(set)
	if err != nil {
		return err
	}

	_, err = r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateNameError(set.Name, err)
		}
		return fmt.Errorf("failed to create filter set: %w", err)
	}

	return nil
}

func (r *mongoRepository) GetFilterSet(ctx context.Context, id string) (set *models.FilterSet, err error) {
	start := time.Now()
	defer func() { observeMongo("get_filter_set", start, err) }()

	var doc filtering.FilterSetDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter set: %w", err)
	}

	return doc.FilterSet()
}

func (r *mongoRepository) ListFilterSets(ctx context.Context) (sets []models.FilterSet, err error) {
	start := time.Now()
	defer func() { observeMongo("list_filter_sets", start, err) }()

	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter sets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []filtering.FilterSetDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode filter sets: %w", err)
	}

	sets = make([]models.FilterSet, 0, len(docs))
	for i := range docs {
		set, err := docs[i].FilterSet()
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}

	return sets, nil
}

func (r *mongoRepository) UpdateFilterSet(ctx context.Context, set *models.FilterSet) (err error) {
	start := time.Now()
	defer func() { observeMongo("update_filter_set", start, err) }()

	set.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	doc, err := filtering.NewFilterSetDocument(set)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"name":        doc.Name,
		"description": doc.Description,
		"filters":     doc.Filters,
		"condition":   doc.Condition,
		"priority":    doc.Priority,
		"enabled":     doc.Enabled,
		"updated_at":  doc.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": set.ID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateNameError(set.Name, err)
		}
		return fmt.Errorf("failed to update filter set: %w", err)
	}

	if result.MatchedCount == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", set.ID)
	}

	return nil
}

func (r *mongoRepository) DeleteFilterSet(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observeMongo("delete_filter_set", start, err) }()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete filter set: %w", err)
	}

	if result.DeletedCount == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	return nil
}
