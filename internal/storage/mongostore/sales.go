package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m3rciful/claimdesk/internal/domain"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	productsCollection = "products"
)

// SalesDB is the sales bot database.
type SalesDB struct {
	db  *mongo.Database
	now func() time.Time
}

// NewSalesDB wraps the sales bot database.
func NewSalesDB(db *mongo.Database) *SalesDB {
	return &SalesDB{db: db, now: time.Now}
}

func (s *SalesDB) users() *mongo.Collection    { return s.db.Collection(usersCollection) }
func (s *SalesDB) messages() *mongo.Collection { return s.db.Collection(messagesCollection) }
func (s *SalesDB) products() *mongo.Collection { return s.db.Collection(productsCollection) }

// UpsertUser refreshes the profile and keeps banned and created_at.
func (s *SalesDB) UpsertUser(ctx context.Context, u domain.SalesUser) error {
	_, err := s.users().UpdateOne(ctx,
		bson.M{"tg_id": u.TgID},
		bson.M{
			"$set":         bson.M{"username": u.Username, "full_name": u.FullName},
			"$setOnInsert": bson.M{"banned": false, "created_at": s.now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert sales user %d: %w", u.TgID, err)
	}
	return nil
}

// User loads a sales bot user.
func (s *SalesDB) User(ctx context.Context, tgID int64) (domain.SalesUser, error) {
	var u domain.SalesUser
	err := s.users().FindOne(ctx, bson.M{"tg_id": tgID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return u, domain.NotFound(fmt.Sprintf("sales user %d not found", tgID))
	}
	if err != nil {
		return u, fmt.Errorf("get sales user %d: %w", tgID, err)
	}
	return u, nil
}

// SetBanned flips the banned flag of a user.
func (s *SalesDB) SetBanned(ctx context.Context, tgID int64, banned bool) error {
	res, err := s.users().UpdateOne(ctx, bson.M{"tg_id": tgID}, bson.M{"$set": bson.M{"banned": banned}})
	if err != nil {
		return fmt.Errorf("ban sales user %d: %w", tgID, err)
	}
	if res.MatchedCount == 0 {
		return domain.NotFound(fmt.Sprintf("sales user %d not found", tgID))
	}
	return nil
}

// Recipients returns ids of every user that is not banned.
func (s *SalesDB) Recipients(ctx context.Context) ([]int64, error) {
	cur, err := s.users().Find(ctx, bson.M{"banned": bson.M{"$ne": true}},
		options.Find().SetProjection(bson.M{"tg_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	var rows []struct {
		TgID int64 `bson:"tg_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.TgID)
	}
	return out, nil
}

// AddMessage stores a message under the next sequential id.
func (s *SalesDB) AddMessage(ctx context.Context, m domain.SalesMessage) (domain.SalesMessage, error) {
	id, err := nextSeq(ctx, s.db, messagesCollection)
	if err != nil {
		return m, err
	}
	m.ID = id
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	if _, err := s.messages().InsertOne(ctx, m); err != nil {
		return m, fmt.Errorf("insert sales message: %w", err)
	}
	return m, nil
}

// History returns the conversation with a user, oldest first.
func (s *SalesDB) History(ctx context.Context, userID int64) ([]domain.SalesMessage, error) {
	cur, err := s.messages().Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("sales history %d: %w", userID, err)
	}
	out := []domain.SalesMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("sales history %d: %w", userID, err)
	}
	return out, nil
}

// MarkChecked marks every inbound message of the user as read.
func (s *SalesDB) MarkChecked(ctx context.Context, userID int64) (int64, error) {
	res, err := s.messages().UpdateMany(ctx,
		bson.M{"user_id": userID, "from_admin": false, "checked": false},
		bson.M{"$set": bson.M{"checked": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark checked %d: %w", userID, err)
	}
	return res.ModifiedCount, nil
}

// ChatFilter narrows the operator chat list.
type ChatFilter struct {
	Username  string
	DateFrom  *time.Time
	DateTo    *time.Time
	HasUnread *bool
	Page      int
	PageSize  int
}

// ChatPageSize is the operator chat list page size.
const ChatPageSize = 50

// Chats aggregates messages per user and returns one page plus the total.
func (s *SalesDB) Chats(ctx context.Context, f ChatFilter) ([]domain.SalesChat, int64, error) {
	cur, err := s.messages().Aggregate(ctx, chatsPipeline(f))
	if err != nil {
		return nil, 0, fmt.Errorf("sales chats: %w", err)
	}
	var res []struct {
		Items []domain.SalesChat `bson:"items"`
		Total []struct {
			N int64 `bson:"n"`
		} `bson:"total"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return nil, 0, fmt.Errorf("sales chats: %w", err)
	}
	if len(res) == 0 {
		return []domain.SalesChat{}, 0, nil
	}
	var total int64
	if len(res[0].Total) > 0 {
		total = res[0].Total[0].N
	}
	items := res[0].Items
	if items == nil {
		items = []domain.SalesChat{}
	}
	return items, total, nil
}

func chatsPipeline(f ChatFilter) mongo.Pipeline {
	size := f.PageSize
	if size <= 0 {
		size = ChatPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	var p mongo.Pipeline
	if created := dateRange(f.DateFrom, f.DateTo); created != nil {
		p = append(p, bson.D{{Key: "$match", Value: bson.M{"created_at": created}}})
	}
	p = append(p,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           "$user_id",
			"username":      bson.M{"$first": "$username"},
			"last_message":  bson.M{"$first": "$text"},
			"last_date":     bson.M{"$first": "$created_at"},
			"message_count": bson.M{"$sum": 1},
			"unread": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$checked", false}},
					bson.M{"$eq": bson.A{"$from_admin", false}},
				}}, 1, 0,
			}}},
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "_id",
			"foreignField": "tg_id",
			"as":           "user",
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"banned":   bson.M{"$ifNull": bson.A{bson.M{"$arrayElemAt": bson.A{"$user.banned", 0}}, false}},
			"username": bson.M{"$ifNull": bson.A{bson.M{"$arrayElemAt": bson.A{"$user.username", 0}}, "$username"}},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"user": 0}}},
	)

	match := bson.M{}
	if f.Username != "" {
		match["username"] = bson.M{"$regex": regexp.QuoteMeta(f.Username), "$options": "i"}
	}
	if f.HasUnread != nil {
		if *f.HasUnread {
			match["unread"] = bson.M{"$gt": 0}
		} else {
			match["unread"] = 0
		}
	}
	if len(match) > 0 {
		p = append(p, bson.D{{Key: "$match", Value: match}})
	}

	p = append(p,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_date", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"items": bson.A{
				bson.M{"$skip": int64((page - 1) * size)},
				bson.M{"$limit": int64(size)},
			},
			"total": bson.A{bson.M{"$count": "n"}},
		}}},
	)
	return p
}

func dateRange(from, to *time.Time) bson.M {
	if from == nil && to == nil {
		return nil
	}
	r := bson.M{}
	if from != nil {
		r["$gte"] = *from
	}
	if to != nil {
		r["$lte"] = *to
	}
	return r
}
