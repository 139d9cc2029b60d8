// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package csql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/relabs-tech/restgen/core/logger"
)

// Supported database clients
const (
	ClientPostgres = "postgres"
	ClientMySQL    = "mysql"
)

// DB encapsulates a standard sql.DB with the client it was opened for
type DB struct {
	*sql.DB
	Client string
}

// Config holds the connection parameters. They are passed through to the driver
// unchanged. If URL is set, it takes precedence over the discrete parameters.
type Config struct {
	Client   string
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// SSLMode is only used for postgres, it defaults to "disable"
	SSLMode string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DataSourceName returns the driver specific connection string
func (c Config) DataSourceName() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	switch c.Client {
	case ClientPostgres, "pg", "postgresql", "":
		var parts []string
		add := func(key, value string) {
			if value != "" {
				parts = append(parts, key+"="+value)
			}
		}
		add("host", c.Host)
		if c.Port != 0 {
			add("port", strconv.Itoa(c.Port))
		}
		add("user", c.User)
		add("password", c.Password)
		add("dbname", c.Database)
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		add("sslmode", sslMode)
		return strings.Join(parts, " "), nil
	case ClientMySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = c.Host
		if c.Port != 0 {
			cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
		}
		cfg.DBName = c.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}
	return "", fmt.Errorf("unsupported database client '%s'", c.Client)
}

// DriverName returns the database/sql driver name for the client
func (c Config) DriverName() string {
	if c.Client == ClientMySQL {
		return ClientMySQL
	}
	return ClientPostgres
}

// Open opens the connection pool described by config and pings the database once.
// The pool is meant to be opened once per process and shared by all handlers.
func Open(ctx context.Context, config Config) (*DB, error) {
	dsn, err := config.DataSourceName()
	if err != nil {
		return nil, err
	}
	driver := config.DriverName()
	logger.Default().Infoln("connecting to database:", driver, config.Host, config.Database)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s database: %w", driver, err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := config.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = maxOpen
	}
	lifetime := config.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 10 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot ping %s database: %w", driver, err)
	}
	return &DB{DB: db, Client: driver}, nil
}
