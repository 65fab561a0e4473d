// Package mongostore keeps conversation state and the sales bot database in MongoDB.
package mongostore
