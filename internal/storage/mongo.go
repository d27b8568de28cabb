package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"task-manager/internal/models"
)

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description,omitempty"`
	Status      string             `bson:"status"`
	Tags        []string           `bson:"tags"`
	UserID      string             `bson:"userId"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d taskDocument) model() models.Task {
	return models.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Status:      models.Status(d.Status),
		Tags:        cloneTags(d.Tags),
		OwnerID:     d.UserID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

// MongoStorage stores tasks and users as documents in two collections.
type MongoStorage struct {
	client *mongo.Client
	tasks  *mongo.Collection
	users  *mongo.Collection
	opts   storeOptions
}

// NewMongoStorage connects to uri and verifies the connection with a ping.
func NewMongoStorage(ctx context.Context, uri, database string, opts ...Option) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	return &MongoStorage{
		client: client,
		tasks:  db.Collection("tasks"),
		users:  db.Collection("users"),
		opts:   buildOptions(opts),
	}, nil
}

// Mongo keeps millisecond precision; truncate so returned records match
// what a later read yields.
func (m *MongoStorage) now() time.Time {
	return m.opts.now().UTC().Truncate(time.Millisecond)
}

func (m *MongoStorage) Migrate(ctx context.Context) error {
	_, err := m.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create tasks index: %w", err)
	}
	_, err = m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	return nil
}

func (m *MongoStorage) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStorage) CreateTask(ctx context.Context, task *models.Task) error {
	now := m.now()
	doc := taskDocument{
		ID:          primitive.NewObjectID(),
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Tags:        cloneTags(task.Tags),
		UserID:      task.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := m.tasks.InsertOne(ctx, doc); err != nil {
		return unavailable("create task", err)
	}
	*task = doc.model()
	return nil
}

func (m *MongoStorage) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.tasks.Find(ctx, bson.M{"userId": ownerID}, findOpts)
	if err != nil {
		return nil, unavailable("list tasks", err)
	}
	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("list tasks", err)
	}
	tasks := make([]models.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.model())
	}
	return tasks, nil
}

// ownedFilter matches a task by id and owner together. An id that is not
// a valid ObjectID cannot match anything.
func ownedFilter(ownerID, taskID string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "userId": ownerID}, true
}

func (m *MongoStorage) UpdateTask(ctx context.Context, ownerID, taskID string, upd models.UpdateTaskRequest) (*models.Task, error) {
	filter, ok := ownedFilter(ownerID, taskID)
	if !ok {
		return nil, ErrNotFound
	}
	set := bson.M{"updatedAt": m.now()}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Status != nil {
		set["status"] = string(*upd.Status)
	}
	if upd.Tags != nil {
		set["tags"] = cloneTags(*upd.Tags)
	}

	var doc taskDocument
	err := m.tasks.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("update task", err)
	}
	t := doc.model()
	return &t, nil
}

func (m *MongoStorage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	filter, ok := ownedFilter(ownerID, taskID)
	if !ok {
		return ErrNotFound
	}
	res, err := m.tasks.DeleteOne(ctx, filter)
	if err != nil {
		return unavailable("delete task", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) CreateUser(ctx context.Context, user *models.User) error {
	now := m.now()
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Email:        NormalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return unavailable("create user", err)
	}
	user.ID = doc.ID.Hex()
	user.Email = doc.Email
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (m *MongoStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc userDocument
	err := m.users.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return &models.User{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}
