package store

import (
	"context"
	"database/sql"

	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/payment"
)

type Store struct {
	db       *sql.DB
	txOpts   database.TxOptions
	payments payment.Confirmer
}

// New wires a store around an open pool. txRetries is the extra attempt
// budget for transactions that fail on serialization or deadlock; zero
// disables retrying.
func New(db *sql.DB, txRetries int, payments payment.Confirmer) *Store {
	opts := database.DefaultTxOptions()
	opts.MaxRetries = txRetries

	if payments == nil {
		payments = payment.AlwaysConfirmed{}
	}

	return &Store{db: db, txOpts: opts, payments: payments}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func isAdmin(role string) bool {
	return role == "admin"
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
