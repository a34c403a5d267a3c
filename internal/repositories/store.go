package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/apperr"
)

var (
	ErrConversationNotFound = apperr.NotFound("conversation not found")
	ErrMessageNotFound      = apperr.NotFound("message not found")
	ErrUserNotFound         = apperr.NotFound("user not found")
)

// Store groups the repositories the messaging core needs. InTx runs fn
// against a store bound to a single transaction; any error rolls it back.
type Store interface {
	Conversations() ConversationRepository
	Messages() MessageRepository
	ReadStates() ReadStateRepository
	Users() UserRepository
	InTx(ctx context.Context, fn func(Store) error) error
}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// SQLStore is the Postgres implementation of Store.
type SQLStore struct {
	db *sqlx.DB
	tx *sqlx.Tx

	conversations *ConversationRepo
	messages      *MessageRepo
	readStates    *ReadStateRepo
	users         *UserRepo
}

// NewSQLStore constructs a SQLStore.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return newSQLStore(db, nil, db)
}

func newSQLStore(db *sqlx.DB, tx *sqlx.Tx, q querier) *SQLStore {
	return &SQLStore{
		db:            db,
		tx:            tx,
		conversations: &ConversationRepo{q: q},
		messages:      &MessageRepo{q: q},
		readStates:    &ReadStateRepo{q: q},
		users:         &UserRepo{q: q},
	}
}

func (s *SQLStore) Conversations() ConversationRepository { return s.conversations }
func (s *SQLStore) Messages() MessageRepository           { return s.messages }
func (s *SQLStore) ReadStates() ReadStateRepository       { return s.readStates }
func (s *SQLStore) Users() UserRepository                 { return s.users }

// InTx runs fn inside a transaction. Nested calls reuse the outer one.
func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Persistence(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newSQLStore(s.db, tx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}
