// Package mongo implements the storage interfaces on top of MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/hangarhq/hangar/internal/app/domain/client"
	"github.com/hangarhq/hangar/internal/app/domain/feature"
	"github.com/hangarhq/hangar/internal/app/domain/platform"
	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
	"github.com/hangarhq/hangar/internal/app/storage"
)

const (
	productsCollection  = "products"
	clientsCollection   = "clients"
	usersCollection     = "users"
	platformsCollection = "platforms"
	featuresCollection  = "features"
	statsCollection     = "stats"
)

// Sort keys must match the models' bson tags; Mongo silently ignores a sort
// on a key no document carries.
const (
	productSortField  = "created_at"
	clientSortField   = "ts"
	userSortField     = "ts"
	platformSortField = "name"
	featureSortField  = "createdAt"
	statSortField     = "date"
)

// Store implements the storage interfaces over a single Mongo database.
type Store struct {
	db *mongo.Database
}

var _ storage.ProductStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.PlatformStore = (*Store)(nil)
var _ storage.FeatureStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)

// Connect dials the Mongo deployment at uri and returns a store bound to
// database. The connection is verified with a ping before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{db: cli.Database(database)}, nil
}

// NewStore wraps an already connected database.
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func (s *Store) products() *mongo.Collection  { return s.db.Collection(productsCollection) }
func (s *Store) clients() *mongo.Collection   { return s.db.Collection(clientsCollection) }
func (s *Store) users() *mongo.Collection     { return s.db.Collection(usersCollection) }
func (s *Store) platforms() *mongo.Collection { return s.db.Collection(platformsCollection) }
func (s *Store) features() *mongo.Collection  { return s.db.Collection(featuresCollection) }

func translateErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return err
}

// ProductStore implementation ------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if _, err := s.products().InsertOne(ctx, p); err != nil {
		return product.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	err := s.products().FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return product.Product{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) FindProducts(ctx context.Context, filter storage.ProductFilter) ([]product.Product, error) {
	query := bson.M{}
	if filter.Client != "" {
		query["client"] = filter.Client
	}
	if filter.Name != "" {
		query["name"] = filter.Name
	}
	if filter.Platform != "" {
		query["compilations"] = bson.M{"$elemMatch": bson.M{"platform": filter.Platform}}
	}

	opts := options.Find().SetSort(bson.D{{Key: productSortField, Value: 1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.products().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cur.Close(ctx)

	var result []product.Product
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	res, err := s.products().ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return product.Product{}, fmt.Errorf("replace product: %w", err)
	}
	if res.MatchedCount == 0 {
		return product.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetProductWithCompilation(ctx context.Context, productID, compilationID string, uploadedOnly bool) (product.Product, error) {
	match := bson.M{"compilationId": compilationID}
	if uploadedOnly {
		match["uploaded"] = true
	}
	query := bson.M{
		"_id":          productID,
		"compilations": bson.M{"$elemMatch": match},
	}

	var p product.Product
	if err := s.products().FindOne(ctx, query).Decode(&p); err != nil {
		return product.Product{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) SetCompilationUploaded(ctx context.Context, productID, compilationID string) (product.Product, error) {
	query := bson.M{
		"_id":          productID,
		"compilations": bson.M{"$elemMatch": bson.M{"compilationId": compilationID}},
	}
	update := bson.M{"$set": bson.M{"compilations.$.uploaded": true}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p product.Product
	if err := s.products().FindOneAndUpdate(ctx, query, update, opts).Decode(&p); err != nil {
		return product.Product{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) AddSubscription(ctx context.Context, productID, userID string) (product.Product, error) {
	update := bson.M{"$push": bson.M{"subscriptions": userID}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p product.Product
	if err := s.products().FindOneAndUpdate(ctx, bson.M{"_id": productID}, update, opts).Decode(&p); err != nil {
		return product.Product{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) RemoveSubscription(ctx context.Context, productID, userID string) (product.Product, error) {
	update := bson.M{"$pull": bson.M{"subscriptions": userID}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p product.Product
	if err := s.products().FindOneAndUpdate(ctx, bson.M{"_id": productID}, update, opts).Decode(&p); err != nil {
		return product.Product{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) RenameProductsClient(ctx context.Context, oldName, newName string) error {
	_, err := s.products().UpdateMany(ctx,
		bson.M{"client": oldName},
		bson.M{"$set": bson.M{"client": newName}})
	if err != nil {
		return fmt.Errorf("rename products client: %w", err)
	}
	return nil
}

// ClientStore implementation -------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if _, err := s.clients().InsertOne(ctx, c); err != nil {
		return client.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (client.Client, error) {
	var c client.Client
	if err := s.clients().FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return client.Client{}, translateErr(err)
	}
	return c, nil
}

func (s *Store) GetClientByName(ctx context.Context, name string) (client.Client, error) {
	var c client.Client
	if err := s.clients().FindOne(ctx, bson.M{"name": name}).Decode(&c); err != nil {
		return client.Client{}, translateErr(err)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context) ([]client.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: clientSortField, Value: -1}})
	cur, err := s.clients().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find clients: %w", err)
	}
	defer cur.Close(ctx)

	var result []client.Client
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	return result, nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	res, err := s.clients().ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return client.Client{}, fmt.Errorf("replace client: %w", err)
	}
	if res.MatchedCount == 0 {
		return client.Client{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.clients().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, err := s.users().InsertOne(ctx, u); err != nil {
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	if err := s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return user.User{}, translateErr(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	query := bson.M{"email": bson.M{"$regex": "^" + escapeRegex(email) + "$", "$options": "i"}}

	var u user.User
	if err := s.users().FindOne(ctx, query).Decode(&u); err != nil {
		return user.User{}, translateErr(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: userSortField, Value: 1}})
	cur, err := s.users().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	var result []user.User
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return result, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	res, err := s.users().ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return user.User{}, fmt.Errorf("replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.users().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) RenameUsersClient(ctx context.Context, oldName, newName string) error {
	_, err := s.users().UpdateMany(ctx,
		bson.M{"client": oldName},
		bson.M{"$set": bson.M{"client": newName}})
	if err != nil {
		return fmt.Errorf("rename users client: %w", err)
	}
	return nil
}

// PlatformStore implementation -----------------------------------------------

func (s *Store) CreatePlatform(ctx context.Context, p platform.Platform) (platform.Platform, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if _, err := s.platforms().InsertOne(ctx, p); err != nil {
		return platform.Platform{}, fmt.Errorf("insert platform: %w", err)
	}
	return p, nil
}

func (s *Store) GetPlatform(ctx context.Context, id string) (platform.Platform, error) {
	var p platform.Platform
	if err := s.platforms().FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return platform.Platform{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) GetPlatformByName(ctx context.Context, name string) (platform.Platform, error) {
	var p platform.Platform
	if err := s.platforms().FindOne(ctx, bson.M{"name": name}).Decode(&p); err != nil {
		return platform.Platform{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) ListPlatforms(ctx context.Context) ([]platform.Platform, error) {
	opts := options.Find().SetSort(bson.D{{Key: platformSortField, Value: 1}})
	cur, err := s.platforms().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find platforms: %w", err)
	}
	defer cur.Close(ctx)

	var result []platform.Platform
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode platforms: %w", err)
	}
	return result, nil
}

func (s *Store) UpdatePlatform(ctx context.Context, p platform.Platform) (platform.Platform, error) {
	res, err := s.platforms().ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return platform.Platform{}, fmt.Errorf("replace platform: %w", err)
	}
	if res.MatchedCount == 0 {
		return platform.Platform{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeletePlatform(ctx context.Context, id string) error {
	res, err := s.platforms().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete platform: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FeatureStore implementation ------------------------------------------------

func (s *Store) CreateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	if _, err := s.features().InsertOne(ctx, f); err != nil {
		return feature.Feature{}, fmt.Errorf("insert feature: %w", err)
	}
	return f, nil
}

func (s *Store) GetFeature(ctx context.Context, id string) (feature.Feature, error) {
	var f feature.Feature
	if err := s.features().FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return feature.Feature{}, translateErr(err)
	}
	return f, nil
}

func (s *Store) FindFeatures(ctx context.Context, filter storage.FeatureFilter) ([]feature.Feature, error) {
	query := bson.M{}
	if filter.BlueprintID != "" {
		query["blueprintId"] = filter.BlueprintID
	}
	if filter.Name != "" {
		query["name"] = bson.M{"$regex": "^" + escapeRegex(filter.Name) + "$", "$options": "i"}
	}
	if len(filter.Tags) > 0 {
		query["tags"] = bson.M{"$all": filter.Tags}
	}

	opts := options.Find().SetSort(bson.D{{Key: featureSortField, Value: 1}})
	cur, err := s.features().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find features: %w", err)
	}
	defer cur.Close(ctx)

	var result []feature.Feature
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return result, nil
}

func (s *Store) UpdateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error) {
	f.UpdatedAt = time.Now().UTC()
	res, err := s.features().ReplaceOne(ctx, bson.M{"_id": f.ID}, f)
	if err != nil {
		return feature.Feature{}, fmt.Errorf("replace feature: %w", err)
	}
	if res.MatchedCount == 0 {
		return feature.Feature{}, storage.ErrNotFound
	}
	return f, nil
}

func (s *Store) CountFeatures(ctx context.Context) (int64, error) {
	n, err := s.features().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count features: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteFeature(ctx context.Context, id string) error {
	res, err := s.features().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete feature: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// StatsStore implementation ----------------------------------------------------

func (s *Store) stats() *mongo.Collection { return s.db.Collection(statsCollection) }

func (s *Store) RecordStat(ctx context.Context, snapshot storage.StatSnapshot) error {
	filter := bson.M{"type": snapshot.Type, "date": snapshot.Date}
	_, err := s.stats().ReplaceOne(ctx, filter, snapshot, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record stat: %w", err)
	}
	return nil
}

func (s *Store) ListStats(ctx context.Context, statType string, since time.Time) ([]storage.StatSnapshot, error) {
	query := bson.M{"type": statType, "date": bson.M{"$gte": since}}
	opts := options.Find().SetSort(bson.D{{Key: statSortField, Value: 1}})

	cur, err := s.stats().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find stats: %w", err)
	}
	defer cur.Close(ctx)

	var result []storage.StatSnapshot
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return result, nil
}

func escapeRegex(s string) string {
	return regexp.QuoteMeta(s)
}
