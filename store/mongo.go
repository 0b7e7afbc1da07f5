package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
)

// MongoConfig represents the configuration for the Mongo-backed storage.
type MongoConfig struct {
	ConnectionURL   string        `env:"MONGODB_URL,required"`
	Database        string        `env:"MONGODB_DATABASE" envDefault:"notifier"`
	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryAttempts   int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}

// ConnectMongo establishes a Mongo connection with retries and returns the
// configured database handle.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	for range cfg.RetryAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime),
		)
		if err == nil {
			if err := client.Ping(ctx, nil); err == nil {
				return client.Database(cfg.Database), nil
			}
		}

		time.Sleep(cfg.RetryInterval)
	}

	return nil, ErrFailedToConnect
}

// MongoStorage implements Storage on top of MongoDB. Notifications are
// stored as single documents with the delivery array embedded, so the claim
// operation is one conditional FindOneAndUpdate addressing the matching
// array element through an array filter.
type MongoStorage struct {
	notifications *mongo.Collection
	preferences   *mongo.Collection
}

// NewMongoStorage creates storage bound to the given database.
func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{
		notifications: db.Collection("notifications"),
		preferences:   db.Collection("user_preferences"),
	}
}

// EnsureIndexes creates the indexes the storage depends on: the partial
// unique index backing deduplication keys and the dispatch scan index.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.notifications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "recipient_user_id", Value: 1}, {Key: "deduplication_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "deduplication_key", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "deliveries.channel", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "recipient_user_id", Value: 1}, {Key: "archived_at", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	})
	return err
}

var activeStatuses = bson.A{
	notification.StatusQueued,
	notification.StatusDispatching,
	notification.StatusPartiallySent,
}

func (s *MongoStorage) Create(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *MongoStorage) Get(ctx context.Context, id string) (*notification.Notification, error) {
	var n notification.Notification
	err := s.notifications.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *MongoStorage) userFilter(userID string, status ReadFilter) bson.D {
	filter := bson.D{
		{Key: "recipient_user_id", Value: userID},
		{Key: "archived_at", Value: nil},
	}
	switch status {
	case ReadFilterUnread:
		filter = append(filter, bson.E{Key: "read_at", Value: nil})
	case ReadFilterRead:
		filter = append(filter, bson.E{Key: "read_at", Value: bson.D{{Key: "$ne", Value: nil}}})
	}
	return filter
}

func (s *MongoStorage) ListForUser(ctx context.Context, userID string, opts ListOptions) ([]notification.Notification, int, error) {
	filter := s.userFilter(userID, opts.Status)

	total, err := s.notifications.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.notifications.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var items []notification.Notification
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (s *MongoStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	count, err := s.notifications.CountDocuments(ctx, s.userFilter(userID, ReadFilterUnread))
	return int(count), err
}

func (s *MongoStorage) MarkRead(ctx context.Context, id string, userID string) error {
	// Repeat calls keep the first read timestamp, matching the other
	// backends.
	now := time.Now().UTC()
	res, err := s.notifications.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "recipient_user_id", Value: userID}},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.D{
				{Key: "read_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$read_at", now}}}},
				{Key: "updated_at", Value: now},
			}}},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStorage) MarkAllRead(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := s.notifications.UpdateMany(ctx,
		s.userFilter(userID, ReadFilterUnread),
		bson.D{{Key: "$set", Value: bson.D{{Key: "read_at", Value: now}, {Key: "updated_at", Value: now}}}},
	)
	return err
}

func (s *MongoStorage) Archive(ctx context.Context, id string, userID string) error {
	now := time.Now().UTC()
	res, err := s.notifications.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "recipient_user_id", Value: userID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "archived_at", Value: now}, {Key: "updated_at", Value: now}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStorage) Unarchive(ctx context.Context, id string, userID string) error {
	res, err := s.notifications.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "recipient_user_id", Value: userID}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "archived_at", Value: nil}, {Key: "updated_at", Value: time.Now().UTC()}}},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// dueFilter is the dispatch eligibility predicate expressed as a Mongo
// query. It is used verbatim by FindDue and re-checked by Claim so both
// sides agree on what "due" means.
func dueFilter(ch notification.Channel, now time.Time) bson.D {
	return bson.D{
		{Key: "status", Value: bson.D{{Key: "$in", Value: activeStatuses}}},
		{Key: "archived_at", Value: nil},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "scheduled_at", Value: nil}},
			bson.D{{Key: "scheduled_at", Value: bson.D{{Key: "$lte", Value: now}}}},
		}},
		{Key: "deliveries", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "channel", Value: ch},
			{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{notification.DeliveryQueued, notification.DeliverySending}}}},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "next_retry_at", Value: nil}},
				bson.D{{Key: "next_retry_at", Value: bson.D{{Key: "$lte", Value: now}}}},
			}},
		}}}},
	}
}

func (s *MongoStorage) FindDue(ctx context.Context, ch notification.Channel, now time.Time, limit int) ([]notification.Notification, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.notifications.Find(ctx, dueFilter(ch, now), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []notification.Notification
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *MongoStorage) Claim(ctx context.Context, id string, ch notification.Channel, now time.Time) (*notification.Notification, error) {
	filter := append(bson.D{{Key: "_id", Value: id}}, dueFilter(ch, now)...)

	sentAt := now.UTC()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: notification.StatusDispatching},
			{Key: "updated_at", Value: sentAt},
			{Key: "deliveries.$[d].status", Value: notification.DeliverySending},
			{Key: "deliveries.$[d].sent_at", Value: sentAt},
		}},
		{Key: "$inc", Value: bson.D{{Key: "deliveries.$[d].attempt_count", Value: 1}}},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetArrayFilters(bson.A{bson.D{
			{Key: "d.channel", Value: ch},
			{Key: "d.status", Value: bson.D{{Key: "$in", Value: bson.A{notification.DeliveryQueued, notification.DeliverySending}}}},
		}})

	var n notification.Notification
	err := s.notifications.FindOneAndUpdate(ctx, filter, update, opts).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Lost the race or no longer eligible.
			return nil, ErrClaimConflict
		}
		return nil, err
	}
	return &n, nil
}

func (s *MongoStorage) UpdateDelivery(ctx context.Context, id string, d notification.Delivery) (*notification.Notification, error) {
	// A single pipeline update replaces the delivery element and re-derives
	// the aggregate status from the resulting set inside the storage engine.
	// Concurrent sibling-channel updates therefore serialize on the document
	// and can never compute the status from a stale snapshot of each other.
	replaceStage := bson.D{{Key: "$set", Value: bson.D{
		{Key: "deliveries", Value: bson.D{{Key: "$map", Value: bson.D{
			{Key: "input", Value: "$deliveries"},
			{Key: "as", Value: "del"},
			{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$$del.channel", d.Channel}}},
				bson.D{{Key: "$literal", Value: d}},
				"$$del",
			}}}},
		}}}},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	statusStage := bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: aggregateStatusExpr()}}}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n notification.Notification
	err := s.notifications.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		mongo.Pipeline{replaceStage, statusStage},
		opts,
	).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func deliveryCountExpr(cond bson.D) bson.D {
	return bson.D{{Key: "$size", Value: bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: "$deliveries"},
		{Key: "as", Value: "del"},
		{Key: "cond", Value: cond},
	}}}}}
}

// aggregateStatusExpr mirrors notification.RecomputeStatus as a server-side
// aggregation expression: the same derivation rules, including counting a
// queued delivery with a recorded failure as failed.
func aggregateStatusExpr() bson.D {
	eqStatus := func(s notification.DeliveryStatus) bson.D {
		return bson.D{{Key: "$eq", Value: bson.A{"$$del.status", s}}}
	}
	failedCond := bson.D{{Key: "$or", Value: bson.A{
		eqStatus(notification.DeliveryFailed),
		bson.D{{Key: "$and", Value: bson.A{
			eqStatus(notification.DeliveryQueued),
			bson.D{{Key: "$gt", Value: bson.A{"$$del.failure_at", nil}}},
		}}},
	}}}
	queuedCond := bson.D{{Key: "$and", Value: bson.A{
		eqStatus(notification.DeliveryQueued),
		bson.D{{Key: "$lte", Value: bson.A{"$$del.failure_at", nil}}},
	}}}
	sendingCond := bson.D{{Key: "$in", Value: bson.A{
		"$$del.status",
		bson.A{notification.DeliverySending, notification.DeliverySent},
	}}}

	gtZero := func(v string) bson.D { return bson.D{{Key: "$gt", Value: bson.A{v, 0}}} }
	branches := bson.A{
		bson.D{
			{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$$total", 0}}}},
			{Key: "then", Value: notification.StatusQueued},
		},
		bson.D{
			{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$$cancelled", "$$total"}}}},
			{Key: "then", Value: notification.StatusCancelled},
		},
		bson.D{
			{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$$delivered", "$$cancelled"}}},
				"$$total",
			}}}},
			{Key: "then", Value: notification.StatusCompleted},
		},
		bson.D{
			{Key: "case", Value: bson.D{{Key: "$and", Value: bson.A{
				gtZero("$$failed"),
				bson.D{{Key: "$or", Value: bson.A{gtZero("$$delivered"), gtZero("$$queued")}}},
			}}}},
			{Key: "then", Value: notification.StatusPartiallySent},
		},
		bson.D{
			{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$$queued", "$$total"}}}},
			{Key: "then", Value: notification.StatusQueued},
		},
		bson.D{
			{Key: "case", Value: bson.D{{Key: "$or", Value: bson.A{gtZero("$$queued"), gtZero("$$sending")}}}},
			{Key: "then", Value: notification.StatusDispatching},
		},
	}

	return bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{
			{Key: "total", Value: bson.D{{Key: "$size", Value: "$deliveries"}}},
			{Key: "cancelled", Value: deliveryCountExpr(eqStatus(notification.DeliveryCancelled))},
			{Key: "delivered", Value: deliveryCountExpr(eqStatus(notification.DeliveryDelivered))},
			{Key: "failed", Value: deliveryCountExpr(failedCond)},
			{Key: "queued", Value: deliveryCountExpr(queuedCond)},
			{Key: "sending", Value: deliveryCountExpr(sendingCond)},
		}},
		{Key: "in", Value: bson.D{{Key: "$switch", Value: bson.D{
			{Key: "branches", Value: branches},
			{Key: "default", Value: notification.StatusPartiallySent},
		}}}},
	}}}
}

func (s *MongoStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.notifications.DeleteMany(ctx, bson.D{
		{Key: "expires_at", Value: bson.D{
			{Key: "$ne", Value: nil},
			{Key: "$lte", Value: now},
		}},
	})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

type mongoPreferencesDoc struct {
	UserID      string             `bson:"_id"`
	Preferences policy.Preferences `bson:"preferences"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// GetPreferences implements PreferencesStorage.
func (s *MongoStorage) GetPreferences(ctx context.Context, userID string) (policy.Preferences, error) {
	var doc mongoPreferencesDoc
	err := s.preferences.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return policy.DefaultPreferences(), nil
		}
		return policy.Preferences{}, err
	}
	return doc.Preferences, nil
}

// UpdatePreferences implements PreferencesStorage with shallow-merge
// semantics applied in application code, then persisted whole.
func (s *MongoStorage) UpdatePreferences(ctx context.Context, userID string, patch policy.PreferencesPatch) (policy.Preferences, error) {
	current, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return policy.Preferences{}, err
	}
	updated := current.Apply(patch)

	_, err = s.preferences.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		mongoPreferencesDoc{UserID: userID, Preferences: updated, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return policy.Preferences{}, err
	}
	return updated, nil
}
