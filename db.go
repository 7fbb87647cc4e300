// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package apcore

import (
	"database/sql"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver name, matching queue's
	// postgres-backed job store.
	_ "github.com/jackc/pgx/v4/stdlib"
)

// openDatabase opens (without yet connecting) the configured Postgres
// database and applies the configured pool limits. The caller is
// responsible for running the queue/filter/fetcher schema migrations
// this server's tables need.
func openDatabase(c *config) (db *sql.DB, err error) {
	conn, err := postgresConnString(c.DatabaseConfig.PostgresConfig)
	if err != nil {
		return
	}

	InfoLogger.Infof("Opening database connection pool")
	db, err = sql.Open("pgx", conn)
	if err != nil {
		return
	}

	if c.DatabaseConfig.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(
			time.Duration(c.DatabaseConfig.ConnMaxLifetimeSeconds) * time.Second)
	}
	if c.DatabaseConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.DatabaseConfig.MaxOpenConns)
	}
	if c.DatabaseConfig.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(c.DatabaseConfig.MaxIdleConns)
	}
	return
}

func mustPingDatabase(db *sql.DB) error {
	InfoLogger.Infof("Pinging database to open a connection")
	start := time.Now()
	if err := db.Ping(); err != nil {
		ErrorLogger.Errorf("unsuccessful database ping: %s", err)
		return err
	}
	InfoLogger.Infof("Successful database ping, latency: %s", time.Since(start))
	return nil
}

func postgresConnString(pg postgresConfig) (s string, err error) {
	if len(pg.DatabaseName) == 0 {
		err = fmt.Errorf("postgres config missing pg_db_name")
		return
	} else if len(pg.UserName) == 0 {
		err = fmt.Errorf("postgres config missing pg_user")
		return
	}
	s = fmt.Sprintf("dbname=%s user=%s", pg.DatabaseName, pg.UserName)
	if len(pg.Host) > 0 {
		s = fmt.Sprintf("%s host=%s", s, pg.Host)
	}
	if pg.Port > 0 {
		s = fmt.Sprintf("%s port=%d", s, pg.Port)
	}
	if len(pg.SSLMode) > 0 {
		s = fmt.Sprintf("%s sslmode=%s", s, pg.SSLMode)
	}
	if len(pg.FallbackApplicationName) > 0 {
		s = fmt.Sprintf("%s fallback_application_name=%s", s, pg.FallbackApplicationName)
	}
	if pg.ConnectTimeout > 0 {
		s = fmt.Sprintf("%s connect_timeout=%d", s, pg.ConnectTimeout)
	}
	if len(pg.SSLCert) > 0 {
		s = fmt.Sprintf("%s sslcert=%s", s, pg.SSLCert)
	}
	if len(pg.SSLKey) > 0 {
		s = fmt.Sprintf("%s sslkey=%s", s, pg.SSLKey)
	}
	if len(pg.SSLRootCert) > 0 {
		s = fmt.Sprintf("%s sslrootcert=%s", s, pg.SSLRootCert)
	}
	return
}
