package database

import (
	"database/sql"
	"errors"
)

// ErrDuplicatePrivateRoom is returned by CreatePrivateRoom when another
// transaction already created a room for the same participant pair.
var ErrDuplicatePrivateRoom = errors.New("private room already exists for pair")

type PgChatRepository struct {
	conn *sql.DB
}

func NewPgChatRepository(dsn string) (*PgChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgChatRepository{conn: db}, nil
}

func (db *PgChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
