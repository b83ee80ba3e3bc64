package main

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

var db *sql.DB

func initDB(connStr string) {
	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		logrus.Fatal("Error connecting to the database: ", err)
	}
	if err = db.Ping(); err != nil {
		logrus.Fatal("Cannot reach the database: ", err)
	}
	logrus.Info("Database connection established successfully")

	// The database structure is created from schema.sql; apply it
	// manually (psql -f schema.sql) before the first run.
}
