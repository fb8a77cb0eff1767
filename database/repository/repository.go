package repository

import (
	accountRepo "skylark/database/repository/account"
	groupRepo "skylark/database/repository/group"
	messageRepo "skylark/database/repository/message"

	"go.mongodb.org/mongo-driver/mongo"
)

// Re-export the repository interfaces and constructors.
type AccountRepository = accountRepo.AccountRepository

type GroupRepository = groupRepo.GroupRepository

type MessageRepository = messageRepo.MessageRepository

// Repositories bundles the Mongo-backed stores the services depend on.
type Repositories struct {
	Accounts AccountRepository
	Groups   GroupRepository
	Messages MessageRepository
}

// NewMongoRepositories builds every repository on db and ensures indexes.
func NewMongoRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		Accounts: accountRepo.NewMongoAccountRepo(db),
		Groups:   groupRepo.NewMongoGroupRepo(db),
		Messages: messageRepo.NewMongoMessageRepo(db),
	}
}
