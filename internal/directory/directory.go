// Package directory resolves caller identities to stable account ids and
// display names. The chat core consumes it through the Directory interface
// and never reaches into the accounts table directly.
package directory

import (
	"database/sql"

	"github.com/Masterminds/squirrel"
)

type Directory interface {
	ResolveUsername(username string) (int, error)
	GetDisplayName(accountId int) (string, error)
	IsUserActive(accountId int) (bool, error)
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type PgDirectory struct {
	conn *sql.DB
}

func NewPgDirectory(dsn string) (*PgDirectory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgDirectory{conn: db}, nil
}

func (d *PgDirectory) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *PgDirectory) ResolveUsername(username string) (int, error) {
	sqlStr, args, err := psql.Select("id").
		From("accounts").
		Where(squirrel.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return 0, err
	}

	var id int
	err = d.conn.QueryRow(sqlStr, args...).Scan(&id)
	return id, err
}

func (d *PgDirectory) GetDisplayName(accountId int) (string, error) {
	sqlStr, args, err := psql.Select("username").
		From("accounts").
		Where(squirrel.Eq{"id": accountId}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}

	var username string
	err = d.conn.QueryRow(sqlStr, args...).Scan(&username)
	return username, err
}

func (d *PgDirectory) IsUserActive(accountId int) (bool, error) {
	sqlStr, args, err := psql.Select("active").
		From("accounts").
		Where(squirrel.Eq{"id": accountId}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}

	var active bool
	err = d.conn.QueryRow(sqlStr, args...).Scan(&active)
	return active, err
}
