package filtering

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
)

// FilterSetDocument is the MongoDB form of a filter set. The filter list is
// kept as its JSON encoding so tags and ordinals survive unchanged.
type FilterSetDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description,omitempty"`
	Filters     string    `bson:"filters"`
	Condition   string    `bson:"condition,omitempty"`
	Priority    int       `bson:"priority"`
	Enabled     bool      `bson:"enabled"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func NewFilterSetDocument(set *models.FilterSet) (*FilterSetDocument, error) {
	filters := set.Filters
	if filters == nil {
		filters = models.FilterList{}
	}
	raw, err := filters.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}

	return &FilterSetDocument{
		ID:          set.ID,
		Name:        set.Name,
		Description: set.Description,
		Filters:     string(raw),
		Condition:   set.Condition,
		Priority:    set.Priority,
		Enabled:     set.Enabled,
		CreatedAt:   set.CreatedAt,
		UpdatedAt:   set.UpdatedAt,
	}, nil
}

func (d *FilterSetDocument) FilterSet() (*models.FilterSet, error) {
	set := &models.FilterSet{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Condition:   d.Condition,
		Priority:    d.Priority,
		Enabled:     d.Enabled,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if err := set.Filters.UnmarshalJSON([]byte(d.Filters)); err != nil {
		return nil, fmt.Errorf("filter set %s: %w: %w", d.ID, ErrInvalidFilters, err)
	}
	return set, nil
}

type MongoRepository struct {
	collection *mongo.Collection
	logger     logger.Logger
}

func NewMongoRepository(db *mongo.Database, log logger.Logger) Repository {
	return &MongoRepository{
		collection: db.Collection(constants.MongoFilterSetsCollection),
		logger:     log,
	}
}

func (r *MongoRepository) GetActiveFilterSets(ctx context.Context) (sets []models.FilterSet, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("filtering", "mongodb", "get_active_filter_sets", time.Since(start), err)
	}()

	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"enabled": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter sets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []FilterSetDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode filter sets: %w", err)
	}

	sets = make([]models.FilterSet, 0, len(docs))
	for i := range docs {
		set, err := docs[i].FilterSet()
		if skipInvalidFilters(ctx, r.logger, err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}

	return sets, nil
}
