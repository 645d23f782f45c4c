package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"graph-cdc/internal/config"
)

// MySQLChecker validates the MySQL connection and the prerequisites for
// binlog capture before the connector starts.
type MySQLChecker struct {
	cfg    config.MySQLConfig
	logger *logrus.Logger
}

func NewMySQLChecker(cfg config.MySQLConfig, logger *logrus.Logger) *MySQLChecker {
	return &MySQLChecker{cfg: cfg, logger: logger}
}

// CheckConnectionAndPermissions verifies connectivity, replication
// privileges and binlog configuration.
func (c *MySQLChecker) CheckConnectionAndPermissions() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Port)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	c.logger.Info("Successfully connected to MySQL server")

	if err := c.checkGrants(db); err != nil {
		return err
	}
	return c.checkBinlogSettings(db)
}

func (c *MySQLChecker) checkGrants(db *sql.DB) error {
	rows, err := db.Query("SHOW GRANTS FOR CURRENT_USER()")
	if err != nil {
		// MySQL 5.6 fallback
		rows, err = db.Query("SHOW GRANTS")
		if err != nil {
			return fmt.Errorf("failed to check grants: %w", err)
		}
	}
	defer rows.Close()

	var grants strings.Builder
	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return fmt.Errorf("failed to scan grant: %w", err)
		}
		if grants.Len() > 0 {
			grants.WriteString("; ")
		}
		grants.WriteString(grant)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating grants: %w", err)
	}

	grantsUpper := strings.ToUpper(grants.String())
	var missing []string
	for _, priv := range []string{"REPLICATION SLAVE", "REPLICATION CLIENT", "SELECT"} {
		if !strings.Contains(grantsUpper, priv) {
			missing = append(missing, priv)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required permissions: %s. Current grants: %s", strings.Join(missing, ", "), grants.String())
	}

	c.logger.Info("All required permissions verified")
	return nil
}

func (c *MySQLChecker) checkBinlogSettings(db *sql.DB) error {
	logBin, err := showVariable(db, "log_bin")
	if err != nil {
		c.logger.Warn("Could not verify binlog status")
	} else if logBin != "ON" && logBin != "1" {
		return fmt.Errorf("binary logging (log_bin) is not enabled. Current value: %s", logBin)
	} else {
		c.logger.Info("Binary logging is enabled")
	}

	format, err := showVariable(db, "binlog_format")
	if err == nil && format != "ROW" {
		c.logger.Warnf("binlog_format is set to %q, but ROW format is required to capture full row images", format)
	} else if format == "ROW" {
		c.logger.Info("binlog_format is set to ROW")
	}

	return nil
}

func showVariable(db *sql.DB, name string) (string, error) {
	var ignored, value string
	err := db.QueryRow("SHOW VARIABLES LIKE '" + name + "'").Scan(&ignored, &value)
	if err != nil {
		// Some deployments restrict SHOW VARIABLES; try the session variable
		err = db.QueryRow("SELECT @@" + name).Scan(&value)
	}
	return value, err
}
