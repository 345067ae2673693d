package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/models"
)

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	PasswordCost   int
	Clock          func() time.Time
}

func newMongoConfig(uri string, opts ...Option) MongoConfig {
	cfg := MongoConfig{
		URI:            uri,
		Database:       "vidhub",
		ConnectTimeout: 10 * time.Second,
		PasswordCost:   bcrypt.DefaultCost,
		Clock:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMongo(&cfg)
		}
	}
	return cfg
}

type mongoUser struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	FullName     string    `bson:"fullName"`
	Email        string    `bson:"email"`
	Avatar       string    `bson:"avatar"`
	PasswordHash string    `bson:"password"`
	RefreshToken string    `bson:"refreshToken"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func (u mongoUser) model() models.User {
	return models.User{
		ID:           u.ID,
		Username:     u.Username,
		FullName:     u.FullName,
		Email:        u.Email,
		Avatar:       u.Avatar,
		PasswordHash: u.PasswordHash,
		RefreshToken: u.RefreshToken,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

type mongoVideo struct {
	ID           string    `bson:"_id"`
	OwnerID      string    `bson:"owner"`
	Title        string    `bson:"title"`
	Description  string    `bson:"description"`
	Duration     float64   `bson:"duration"`
	VideoURL     string    `bson:"videofile"`
	ThumbnailURL string    `bson:"thumbnail"`
	IsPublish    bool      `bson:"isPublish"`
	Views        int64     `bson:"views"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (v mongoVideo) model() models.Video {
	return models.Video{
		ID:           v.ID,
		OwnerID:      v.OwnerID,
		Title:        v.Title,
		Description:  v.Description,
		Duration:     v.Duration,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		IsPublish:    v.IsPublish,
		Views:        v.Views,
		CreatedAt:    v.CreatedAt.UTC(),
		UpdatedAt:    v.UpdatedAt.UTC(),
	}
}

type mongoSubscription struct {
	ID           string    `bson:"_id"`
	SubscriberID string    `bson:"subscriber"`
	ChannelID    string    `bson:"channel"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type mongoLike struct {
	ID        string    `bson:"_id"`
	VideoID   string    `bson:"video"`
	LikedByID string    `bson:"likedBy"`
	CreatedAt time.Time `bson:"createdAt"`
}

type mongoRepository struct {
	client        *mongo.Client
	cfg           MongoConfig
	users         *mongo.Collection
	videos        *mongo.Collection
	subscriptions *mongo.Collection
	likes         *mongo.Collection
}

// NewMongoRepository connects to MongoDB and ensures the indexes the
// repository relies on exist.
func NewMongoRepository(ctx context.Context, uri string, opts ...Option) (Repository, error) {
	cfg := newMongoConfig(uri, opts...)
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri required")
	}
	clientOpts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(cfg.Database)
	repo := &mongoRepository{
		client:        client,
		cfg:           cfg,
		users:         db.Collection("users"),
		videos:        db.Collection("videos"),
		subscriptions: db.Collection("subscriptions"),
		likes:         db.Collection("likes"),
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (r *mongoRepository) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		r.users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		r.videos: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		},
		r.subscriptions: {
			{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}}, Options: unique},
		},
		r.likes: {
			{Keys: bson.D{{Key: "video", Value: 1}, {Key: "likedBy", Value: 1}}, Options: unique},
		},
	}
	for coll, specs := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll.Name(), err)
		}
	}
	return nil
}

func (r *mongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *mongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *mongoRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	ownerID := strings.TrimSpace(params.OwnerID)
	if ownerID == "" {
		return models.Video{}, errors.New("owner is required")
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	now := r.cfg.Clock()
	doc := mongoVideo{
		ID:           newID(),
		OwnerID:      ownerID,
		Title:        title,
		Description:  params.Description,
		Duration:     params.Duration,
		VideoURL:     params.VideoURL,
		ThumbnailURL: params.ThumbnailURL,
		IsPublish:    params.IsPublish,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.videos.InsertOne(ctx, doc); err != nil {
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	videos, err := r.populateOwners(ctx, []mongoVideo{doc})
	if err != nil {
		return models.Video{}, err
	}
	return videos[0], nil
}

func (r *mongoRepository) GetVideo(ctx context.Context, id string) (models.Video, error) {
	var doc mongoVideo
	err := r.videos.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("load video %s: %w", id, err)
	}
	videos, err := r.populateOwners(ctx, []mongoVideo{doc})
	if err != nil {
		return models.Video{}, err
	}
	return videos[0], nil
}

func newestFirst() bson.D {
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

func (r *mongoRepository) ListVideos(ctx context.Context, query VideoQuery) (VideoPage, error) {
	query = query.Normalize()
	filter := bson.M{}
	if query.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}
	total, err := r.videos.CountDocuments(ctx, filter)
	if err != nil {
		return VideoPage{}, fmt.Errorf("count videos: %w", err)
	}
	if int64(query.Offset()) >= total {
		return VideoPage{Items: []models.Video{}, Page: query.Page, Limit: query.Limit, Total: total}, nil
	}
	findOpts := options.Find().
		SetSort(newestFirst()).
		SetSkip(int64(query.Offset())).
		SetLimit(int64(query.Limit))
	docs, err := r.findVideos(ctx, filter, findOpts)
	if err != nil {
		return VideoPage{}, err
	}
	items, err := r.populateOwners(ctx, docs)
	if err != nil {
		return VideoPage{}, err
	}
	return VideoPage{Items: items, Page: query.Page, Limit: query.Limit, Total: total}, nil
}

func (r *mongoRepository) ListVideosByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	docs, err := r.findVideos(ctx, bson.M{"owner": ownerID}, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, err
	}
	return r.populateOwners(ctx, docs)
}

func (r *mongoRepository) findVideos(ctx context.Context, filter any, opts *options.FindOptions) ([]mongoVideo, error) {
	cursor, err := r.videos.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find videos: %w", err)
	}
	docs := make([]mongoVideo, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode videos: %w", err)
	}
	return docs, nil
}

func (r *mongoRepository) populateOwners(ctx context.Context, docs []mongoVideo) ([]models.Video, error) {
	ownerIDs := make([]string, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.OwnerID]; ok {
			continue
		}
		seen[doc.OwnerID] = struct{}{}
		ownerIDs = append(ownerIDs, doc.OwnerID)
	}
	owners := make(map[string]models.UserSummary, len(ownerIDs))
	if len(ownerIDs) > 0 {
		cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ownerIDs}})
		if err != nil {
			return nil, fmt.Errorf("find owners: %w", err)
		}
		var users []mongoUser
		if err := cursor.All(ctx, &users); err != nil {
			return nil, fmt.Errorf("decode owners: %w", err)
		}
		for _, user := range users {
			owners[user.ID] = user.model().Summary()
		}
	}
	videos := make([]models.Video, 0, len(docs))
	for _, doc := range docs {
		video := doc.model()
		if owner, ok := owners[doc.OwnerID]; ok {
			summary := owner
			video.Owner = &summary
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func (r *mongoRepository) UpdateVideo(ctx context.Context, id string, update VideoUpdate) (models.Video, error) {
	if update.Empty() {
		return r.GetVideo(ctx, id)
	}
	set := bson.M{"updatedAt": r.cfg.Clock()}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.IsPublish != nil {
		set["isPublish"] = *update.IsPublish
	}
	if update.Duration != nil {
		set["duration"] = *update.Duration
	}
	res, err := r.videos.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return models.Video{}, fmt.Errorf("update video %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return r.GetVideo(ctx, id)
}

func (r *mongoRepository) DeleteVideo(ctx context.Context, id string) error {
	res, err := r.videos.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if _, err := r.likes.DeleteMany(ctx, bson.M{"video": id}); err != nil {
		return fmt.Errorf("delete likes for video %s: %w", id, err)
	}
	return nil
}

func (r *mongoRepository) IncrementVideoViews(ctx context.Context, id string) (int64, error) {
	var doc mongoVideo
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.videos.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment views %s: %w", id, err)
	}
	return doc.Views, nil
}

func (r *mongoRepository) CountVideosByOwner(ctx context.Context, ownerID string) (int64, error) {
	count, err := r.videos.CountDocuments(ctx, bson.M{"owner": ownerID})
	if err != nil {
		return 0, fmt.Errorf("count owner videos: %w", err)
	}
	return count, nil
}

func (r *mongoRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	params, err := params.normalized()
	if err != nil {
		return models.User{}, err
	}
	passwordHash, err := hashPassword(params.Password, r.cfg.PasswordCost)
	if err != nil {
		return models.User{}, err
	}
	doc := mongoUser{
		ID:           newID(),
		Username:     params.Username,
		FullName:     params.FullName,
		Email:        params.Email,
		Avatar:       params.Avatar,
		PasswordHash: passwordHash,
		CreatedAt:    r.cfg.Clock(),
	}
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, fmt.Errorf("user %s: %w", doc.Email, ErrDuplicate)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	return r.findUser(ctx, bson.M{"_id": id}, id)
}

func (r *mongoRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	normalized, _ := CreateUserParams{Username: "-", Email: email}.normalized()
	return r.findUser(ctx, bson.M{"email": normalized.Email}, email)
}

func (r *mongoRepository) findUser(ctx context.Context, filter bson.M, label string) (models.User, error) {
	var doc mongoUser
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, fmt.Errorf("user %s: %w", label, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", label, err)
	}
	return doc.model(), nil
}

func (r *mongoRepository) AddSubscription(ctx context.Context, subscriberID, channelID string) (models.Subscription, error) {
	if subscriberID == "" || channelID == "" {
		return models.Subscription{}, errors.New("subscriber and channel are required")
	}
	if _, err := r.GetUser(ctx, channelID); err != nil {
		return models.Subscription{}, fmt.Errorf("channel %s: %w", channelID, err)
	}
	doc := mongoSubscription{ID: newID(), SubscriberID: subscriberID, ChannelID: channelID, CreatedAt: r.cfg.Clock()}
	if _, err := r.subscriptions.InsertOne(ctx, doc); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
		}
		if err := r.subscriptions.FindOne(ctx, bson.M{"subscriber": subscriberID, "channel": channelID}).Decode(&doc); err != nil {
			return models.Subscription{}, fmt.Errorf("load subscription: %w", err)
		}
	}
	return models.Subscription{ID: doc.ID, SubscriberID: doc.SubscriberID, ChannelID: doc.ChannelID, CreatedAt: doc.CreatedAt.UTC()}, nil
}

func (r *mongoRepository) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	count, err := r.subscriptions.CountDocuments(ctx, bson.M{"channel": channelID})
	if err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return count, nil
}

func (r *mongoRepository) AddLike(ctx context.Context, videoID, userID string) (models.Like, error) {
	if videoID == "" || userID == "" {
		return models.Like{}, errors.New("video and user are required")
	}
	if _, err := r.GetVideo(ctx, videoID); err != nil {
		return models.Like{}, err
	}
	doc := mongoLike{ID: newID(), VideoID: videoID, LikedByID: userID, CreatedAt: r.cfg.Clock()}
	if _, err := r.likes.InsertOne(ctx, doc); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return models.Like{}, fmt.Errorf("insert like: %w", err)
		}
		if err := r.likes.FindOne(ctx, bson.M{"video": videoID, "likedBy": userID}).Decode(&doc); err != nil {
			return models.Like{}, fmt.Errorf("load like: %w", err)
		}
	}
	return models.Like{ID: doc.ID, VideoID: doc.VideoID, LikedByID: doc.LikedByID, CreatedAt: doc.CreatedAt.UTC()}, nil
}

// CountLikesForChannel resolves the channel's video ids first and then counts
// likes referencing them.
func (r *mongoRepository) CountLikesForChannel(ctx context.Context, channelID string) (int64, error) {
	ids, err := r.videos.Distinct(ctx, "_id", bson.M{"owner": channelID})
	if err != nil {
		return 0, fmt.Errorf("list channel video ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	count, err := r.likes.CountDocuments(ctx, bson.M{"video": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("count channel likes: %w", err)
	}
	return count, nil
}

var _ Repository = (*mongoRepository)(nil)
