package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"primetrade-api/domain"
)

const (
	tasksCollection = "tasks"
	usersCollection = "users"
)

// Mongo stores tasks and users in a MongoDB database.
type Mongo struct {
	client *mongo.Client
	tasks  *mongo.Collection
	users  *mongo.Collection
	now    func() time.Time
}

// NewMongo connects to uri and verifies the deployment is reachable.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(15 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(database)
	return &Mongo{
		client: client,
		tasks:  db.Collection(tasksCollection),
		users:  db.Collection(usersCollection),
		now:    time.Now,
	}, nil
}

// Close disconnects the client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the primary is reachable.
func (s *Mongo) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the owner index on tasks and the unique email index
// on users. Creating an existing index is a no-op.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("tasks index: %w", err)
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	return nil
}

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Status      string             `bson:"status"`
	Priority    string             `bson:"priority"`
	DueDate     *time.Time         `bson:"dueDate,omitempty"`
	User        string             `bson:"user"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d taskDocument) task() domain.Task {
	return domain.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Status:      domain.Status(d.Status),
		Priority:    domain.Priority(d.Priority),
		DueDate:     d.DueDate,
		Owner:       d.User,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// mongoTaskFilter translates q into a find filter. The search text is
// escaped so it matches as a literal, case-insensitive substring.
func mongoTaskFilter(q domain.TaskQuery) bson.D {
	filter := bson.D{{Key: "user", Value: q.Owner}}
	if q.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: q.Status})
	}
	if q.Priority != "" {
		filter = append(filter, bson.E{Key: "priority", Value: q.Priority})
	}
	if q.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: rx}},
			bson.D{{Key: "description", Value: rx}},
		}})
	}
	return filter
}

func mongoTaskSort(q domain.TaskQuery) bson.D {
	field := q.SortBy
	switch field {
	case "id":
		field = "_id"
	case "owner":
		field = "user"
	}
	dir := -1
	if q.Ascending {
		dir = 1
	}
	return bson.D{{Key: field, Value: dir}}
}

func mongoTaskUpdate(p domain.TaskPatch, now time.Time) bson.D {
	set := bson.D{}
	if p.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *p.Title})
	}
	if p.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *p.Description})
	}
	if p.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*p.Status)})
	}
	if p.Priority != nil {
		set = append(set, bson.E{Key: "priority", Value: string(*p.Priority)})
	}
	if p.DueDate != nil && !p.ClearDueDate {
		set = append(set, bson.E{Key: "dueDate", Value: *truncateMillis(p.DueDate)})
	}
	set = append(set, bson.E{Key: "updatedAt", Value: now})
	update := bson.D{{Key: "$set", Value: set}}
	if p.ClearDueDate {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "dueDate", Value: ""}}})
	}
	return update
}

// FindTasks returns every task matching q in the requested order.
func (s *Mongo) FindTasks(ctx context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	cur, err := s.tasks.Find(ctx, mongoTaskFilter(q), options.Find().SetSort(mongoTaskSort(q)))
	if err != nil {
		return nil, err
	}
	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.task())
	}
	return tasks, nil
}

// FindTask returns nil for ids that are not valid ObjectIDs or not stored.
func (s *Mongo) FindTask(ctx context.Context, id string) (*domain.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var doc taskDocument
	if err := s.tasks.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	t := doc.task()
	return &t, nil
}

func (s *Mongo) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := s.timestamp()
	doc := taskDocument{
		ID:          primitive.NewObjectID(),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     truncateMillis(t.DueDate),
		User:        t.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		return domain.Task{}, err
	}
	return doc.task(), nil
}

func (s *Mongo) UpdateTask(ctx context.Context, owner, id string, p domain.TaskPatch) (*domain.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	filter := bson.D{{Key: "_id", Value: oid}, {Key: "user", Value: owner}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc taskDocument
	err = s.tasks.FindOneAndUpdate(ctx, filter, mongoTaskUpdate(p, s.timestamp()), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	t := doc.task()
	return &t, nil
}

func (s *Mongo) DeleteTask(ctx context.Context, owner, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := s.tasks.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "user", Value: owner}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Bio       string             `bson:"bio,omitempty"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d userDocument) user() domain.User {
	return domain.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Bio:          d.Bio,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (s *Mongo) findUser(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	u := doc.user()
	return &u, nil
}

func (s *Mongo) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: domain.NormalizeEmail(email)}})
}

func (s *Mongo) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return s.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *Mongo) InsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := s.timestamp()
	doc := userDocument{
		ID:        primitive.NewObjectID(),
		Name:      u.Name,
		Email:     domain.NormalizeEmail(u.Email),
		Bio:       u.Bio,
		Password:  u.PasswordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, err
	}
	return doc.user(), nil
}

func (s *Mongo) UpdateUser(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	set := bson.D{{Key: "updatedAt", Value: s.timestamp()}}
	if p.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *p.Name})
	}
	if p.Email != nil {
		set = append(set, bson.E{Key: "email", Value: domain.NormalizeEmail(*p.Email)})
	}
	if p.Bio != nil {
		set = append(set, bson.E{Key: "bio", Value: *p.Bio})
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDocument
	err = s.users.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	u := doc.user()
	return &u, nil
}

// timestamp truncates to the millisecond precision BSON dates keep, so values
// returned from writes equal those read back later.
func (s *Mongo) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func truncateMillis(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}
