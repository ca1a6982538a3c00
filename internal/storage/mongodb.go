package storage

import (
	"context"
	"time"

	"postback-relay/internal/models"
	"postback-relay/pkg/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	collEndpoints      = "postback_endpoints"
	collRelays         = "postback_relays"
	collRequests       = "postback_requests"
	collRelayLogs      = "postback_relay_logs"
	collRedirectClicks = "redirect_clicks"
	collLinkClicks     = "link_clicks"
	collEvents         = "events"
	collRevenue        = "revenue"
)

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(uri, database string, logger *zap.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errs.Wrap(err, "connect to MongoDB")
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errs.Wrap(err, "ping MongoDB")
	}

	logger.Info("Successfully connected to MongoDB", zap.String("database", database))

	s := &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger,
		now:    time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collEndpoints: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "website_id", Value: 1}}},
		},
		collRelays: {
			{Keys: bson.D{{Key: "endpoint_id", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		collRequests: {
			{Keys: bson.D{{Key: "endpoint_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "endpoint_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		collRelayLogs: {
			{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "relay_id", Value: 1}}},
		},
		collRedirectClicks: {
			{Keys: bson.D{{Key: "click_token", Value: 1}}},
			{Keys: bson.D{{Key: "external_click_id", Value: 1}}},
		},
		collLinkClicks: {
			{Keys: bson.D{{Key: "click_id", Value: 1}}},
		},
		collEvents: {
			{Keys: bson.D{{Key: "website_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collRevenue: {
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return errs.Wrapf(err, "create indexes on %s", coll)
		}
	}
	return nil
}

func notFound(err error, what string) error {
	if err == mongo.ErrNoDocuments {
		return errs.Wrap(errs.ErrNotFound, what)
	}
	return errs.Wrap(err, what)
}

func (s *MongoStore) GetEndpointBySlug(ctx context.Context, slug string) (*models.Endpoint, error) {
	var e models.Endpoint
	err := s.db.Collection(collEndpoints).FindOne(ctx, bson.M{"slug": slug}).Decode(&e)
	if err != nil {
		return nil, notFound(err, "find endpoint by slug")
	}
	return &e, nil
}

func (s *MongoStore) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	var e models.Endpoint
	err := s.db.Collection(collEndpoints).FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err != nil {
		return nil, notFound(err, "find endpoint")
	}
	return &e, nil
}

func (s *MongoStore) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(collEndpoints).Find(ctx, bson.M{"deleted_at": bson.M{"$exists": false}}, opts)
	if err != nil {
		return nil, errs.Wrap(err, "list endpoints")
	}
	defer cursor.Close(ctx)

	endpoints := make([]*models.Endpoint, 0)
	if err = cursor.All(ctx, &endpoints); err != nil {
		return nil, errs.Wrap(err, "decode endpoints")
	}
	return endpoints, nil
}

func (s *MongoStore) CreateEndpoint(ctx context.Context, e *models.Endpoint) error {
	_, err := s.db.Collection(collEndpoints).InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return errs.Wrapf(ErrSlugTaken, "slug %q", e.Slug)
	}
	if err != nil {
		s.logger.Error("Failed to insert endpoint", zap.Error(err), zap.String("endpoint_id", e.ID))
		return errs.Wrap(err, "insert endpoint")
	}
	return nil
}

func (s *MongoStore) UpdateEndpoint(ctx context.Context, e *models.Endpoint) error {
	res, err := s.db.Collection(collEndpoints).ReplaceOne(ctx, bson.M{"_id": e.ID}, e)
	if mongo.IsDuplicateKeyError(err) {
		return errs.Wrapf(ErrSlugTaken, "slug %q", e.Slug)
	}
	if err != nil {
		return errs.Wrap(err, "update endpoint")
	}
	if res.MatchedCount == 0 {
		return errs.Wrapf(errs.ErrNotFound, "endpoint %s", e.ID)
	}
	return nil
}

func (s *MongoStore) DeleteEndpoint(ctx context.Context, id string, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"deleted_at": at,
			"is_active":  false,
			"updated_at": at,
		},
	}
	res, err := s.db.Collection(collEndpoints).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errs.Wrap(err, "delete endpoint")
	}
	if res.MatchedCount == 0 {
		return errs.Wrapf(errs.ErrNotFound, "endpoint %s", id)
	}
	return nil
}

func (s *MongoStore) findRelays(ctx context.Context, filter bson.M) ([]*models.Relay, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(collRelays).Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Wrap(err, "list relays")
	}
	defer cursor.Close(ctx)

	relays := make([]*models.Relay, 0)
	if err = cursor.All(ctx, &relays); err != nil {
		return nil, errs.Wrap(err, "decode relays")
	}
	return relays, nil
}

func (s *MongoStore) ListRelays(ctx context.Context, endpointID string) ([]*models.Relay, error) {
	return s.findRelays(ctx, bson.M{"endpoint_id": endpointID})
}

func (s *MongoStore) ListActiveRelays(ctx context.Context, endpointID string) ([]*models.Relay, error) {
	return s.findRelays(ctx, bson.M{"endpoint_id": endpointID, "is_active": true})
}

func (s *MongoStore) GetRelay(ctx context.Context, id string) (*models.Relay, error) {
	var r models.Relay
	if err := s.db.Collection(collRelays).FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, notFound(err, "find relay")
	}
	return &r, nil
}

func (s *MongoStore) CreateRelay(ctx context.Context, r *models.Relay) error {
	if _, err := s.db.Collection(collRelays).InsertOne(ctx, r); err != nil {
		return errs.Wrap(err, "insert relay")
	}
	return nil
}

func (s *MongoStore) UpdateRelay(ctx context.Context, r *models.Relay) error {
	res, err := s.db.Collection(collRelays).ReplaceOne(ctx, bson.M{"_id": r.ID}, r)
	if err != nil {
		return errs.Wrap(err, "update relay")
	}
	if res.MatchedCount == 0 {
		return errs.Wrapf(errs.ErrNotFound, "relay %s", r.ID)
	}
	return nil
}

func (s *MongoStore) DeleteRelay(ctx context.Context, id string) error {
	res, err := s.db.Collection(collRelays).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errs.Wrap(err, "delete relay")
	}
	if res.DeletedCount == 0 {
		return errs.Wrapf(errs.ErrNotFound, "relay %s", id)
	}
	return nil
}

func (s *MongoStore) CreateRequest(ctx context.Context, r *models.PostbackRequest) error {
	if _, err := s.db.Collection(collRequests).InsertOne(ctx, r); err != nil {
		s.logger.Error("Failed to insert postback request",
			zap.Error(err),
			zap.String("request_id", r.ID),
			zap.String("endpoint_id", r.EndpointID))
		return errs.Wrap(err, "insert postback request")
	}
	return nil
}

// UpdateRequest guards status changes with a filter on the allowed previous
// statuses so concurrent writers cannot move a record backwards.
func (s *MongoStore) UpdateRequest(ctx context.Context, id string, u models.RequestUpdate) error {
	set := bson.M{"updated_at": s.now().UTC()}
	filter := bson.M{"_id": id}

	if u.Status != nil {
		set["status"] = *u.Status
		filter["status"] = bson.M{"$in": previousStatuses(*u.Status)}
	}
	if u.ParsedFields != nil {
		set["parsed_fields"] = u.ParsedFields
	}
	if u.Validation != nil {
		set["validation"] = u.Validation
	}
	if u.RelayResult != nil {
		set["relay_result"] = u.RelayResult
	}
	if u.EventID != nil {
		set["event_id"] = *u.EventID
	}
	if u.ClickID != nil {
		set["click_id"] = *u.ClickID
	}
	if u.LinkClickID != nil {
		set["link_click_id"] = *u.LinkClickID
	}
	if u.RedirectClickID != nil {
		set["redirect_click_id"] = *u.RedirectClickID
	}

	res, err := s.db.Collection(collRequests).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return errs.Wrap(err, "update postback request")
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if u.Status == nil {
		return errs.Wrapf(errs.ErrNotFound, "request %s", id)
	}

	n, err := s.db.Collection(collRequests).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return errs.Wrap(err, "count postback request")
	}
	if n == 0 {
		return errs.Wrapf(errs.ErrNotFound, "request %s", id)
	}
	return errs.Wrapf(ErrInvalidTransition, "request %s -> %s", id, *u.Status)
}

func (s *MongoStore) GetRequest(ctx context.Context, id string) (*models.PostbackRequest, error) {
	var r models.PostbackRequest
	if err := s.db.Collection(collRequests).FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, notFound(err, "find postback request")
	}
	return &r, nil
}

func (s *MongoStore) ListRequests(ctx context.Context, endpointID string, page models.Page) ([]*models.PostbackRequest, int64, error) {
	page = page.Normalize()
	filter := bson.M{"endpoint_id": endpointID}
	coll := s.db.Collection(collRequests)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errs.Wrap(err, "count postback requests")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, errs.Wrap(err, "list postback requests")
	}
	defer cursor.Close(ctx)

	requests := make([]*models.PostbackRequest, 0, page.Limit)
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, 0, errs.Wrap(err, "decode postback requests")
	}
	return requests, total, nil
}

func (s *MongoStore) ClearRequests(ctx context.Context, endpointID string) (int64, error) {
	res, err := s.db.Collection(collRequests).DeleteMany(ctx, bson.M{"endpoint_id": endpointID})
	if err != nil {
		return 0, errs.Wrap(err, "clear postback requests")
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) RequestStats(ctx context.Context, endpointID string) ([]models.StatusCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "endpoint_id", Value: endpointID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cursor, err := s.db.Collection(collRequests).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.Wrap(err, "aggregate request stats")
	}
	defer cursor.Close(ctx)

	stats := make([]models.StatusCount, 0)
	if err = cursor.All(ctx, &stats); err != nil {
		return nil, errs.Wrap(err, "decode request stats")
	}
	return stats, nil
}

func (s *MongoStore) CreateRelayLog(ctx context.Context, l *models.RelayLog) error {
	if _, err := s.db.Collection(collRelayLogs).InsertOne(ctx, l); err != nil {
		return errs.Wrap(err, "insert relay log")
	}
	return nil
}

func (s *MongoStore) ListRelayLogs(ctx context.Context, requestID string) ([]*models.RelayLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(collRelayLogs).Find(ctx, bson.M{"request_id": requestID}, opts)
	if err != nil {
		return nil, errs.Wrap(err, "list relay logs")
	}
	defer cursor.Close(ctx)

	logs := make([]*models.RelayLog, 0)
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, errs.Wrap(err, "decode relay logs")
	}
	return logs, nil
}

func (s *MongoStore) SaveRedirectClick(ctx context.Context, c *models.RedirectClick) error {
	if _, err := s.db.Collection(collRedirectClicks).InsertOne(ctx, c); err != nil {
		return errs.Wrap(err, "insert redirect click")
	}
	return nil
}

func (s *MongoStore) SaveLinkClick(ctx context.Context, c *models.LinkClick) error {
	if _, err := s.db.Collection(collLinkClicks).InsertOne(ctx, c); err != nil {
		return errs.Wrap(err, "insert link click")
	}
	return nil
}

func (s *MongoStore) FindRedirectClickByToken(ctx context.Context, token string) (*models.RedirectClick, error) {
	var c models.RedirectClick
	if err := s.db.Collection(collRedirectClicks).FindOne(ctx, bson.M{"click_token": token}).Decode(&c); err != nil {
		return nil, notFound(err, "find redirect click by token")
	}
	return &c, nil
}

func (s *MongoStore) FindRedirectClickByExternalID(ctx context.Context, externalID string) (*models.RedirectClick, error) {
	var c models.RedirectClick
	if err := s.db.Collection(collRedirectClicks).FindOne(ctx, bson.M{"external_click_id": externalID}).Decode(&c); err != nil {
		return nil, notFound(err, "find redirect click by external id")
	}
	return &c, nil
}

func (s *MongoStore) MarkRedirectClickConverted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Collection(collRedirectClicks).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"converted_at": at}})
	return errs.Wrap(err, "mark redirect click converted")
}

func (s *MongoStore) FindLinkClickByClickID(ctx context.Context, clickID string) (*models.LinkClick, error) {
	var c models.LinkClick
	if err := s.db.Collection(collLinkClicks).FindOne(ctx, bson.M{"click_id": clickID}).Decode(&c); err != nil {
		return nil, notFound(err, "find link click")
	}
	return &c, nil
}

func (s *MongoStore) MarkLinkClickConverted(ctx context.Context, clickID string, at time.Time) error {
	_, err := s.db.Collection(collLinkClicks).UpdateMany(ctx,
		bson.M{"click_id": clickID},
		bson.M{"$set": bson.M{"converted_at": at}})
	return errs.Wrap(err, "mark link click converted")
}

func (s *MongoStore) SaveEvent(ctx context.Context, e *models.Event) error {
	if _, err := s.db.Collection(collEvents).InsertOne(ctx, e); err != nil {
		return errs.Wrap(err, "insert event")
	}
	return nil
}

func (s *MongoStore) SaveRevenue(ctx context.Context, r *models.Revenue) error {
	if _, err := s.db.Collection(collRevenue).InsertOne(ctx, r); err != nil {
		return errs.Wrap(err, "insert revenue")
	}
	return nil
}

// Ping reports whether MongoDB is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
