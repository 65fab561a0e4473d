package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m3rciful/claimdesk/core/bootstrap"
	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/mongodb"
)

// StateIndexes are the indexes of the conversation state collection.
func StateIndexes(collection string) []mongodb.Index {
	return []mongodb.Index{
		{Collection: collection, Model: mongo.IndexModel{Keys: bson.D{{Key: "updated_at", Value: -1}}}},
	}
}

// SalesIndexes are the indexes of the sales bot database.
func SalesIndexes() []mongodb.Index {
	return []mongodb.Index{
		{Collection: usersCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "tg_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{Collection: messagesCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{Collection: messagesCollection, Model: mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		}},
		{Collection: productsCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
}

// IndexSeeder creates every index once Mongo is connected.
func IndexSeeder(cfg coreconfig.MongoConfig) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, res *bootstrap.Result) error {
		if res == nil || res.Mongo == nil {
			return nil
		}
		if err := mongodb.EnsureIndexes(ctx, res.Mongo.Database(cfg.StateDB), StateIndexes(cfg.StateCollection)); err != nil {
			return err
		}
		return mongodb.EnsureIndexes(ctx, res.Mongo.Database(cfg.SalesDB), SalesIndexes())
	})
}
