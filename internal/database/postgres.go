package database

import (
	"database/sql"
)

type PgOnlinexRepository struct {
	conn *sql.DB
}

func NewPgOnlinexRepository(dsn string) (*PgOnlinexRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgOnlinexRepository{conn: db}, nil
}

func (db *PgOnlinexRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgOnlinexRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
