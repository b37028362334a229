package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect 屏蔽不同数据库在占位符、upsert 语法与错误码上的差异
type Dialect struct {
	Name       string
	DriverName string

	numbered bool

	upsertTally       string
	insertDisabledMun string
	seedGuard         string

	uniqueViolation func(error) bool
	retryable       func(error) bool
}

const tallyInsert = `INSERT INTO tally_counters
	(election_id, encoded_mayor_id, encoded_deputy_mayor_id, mayor_votes, deputy_mayor_votes)
	VALUES (?, ?, ?, 1, 1)`

var (
	MySQL = &Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		upsertTally: tallyInsert + `
			ON DUPLICATE KEY UPDATE
			mayor_votes = mayor_votes + 1,
			deputy_mayor_votes = deputy_mayor_votes + 1`,
		insertDisabledMun: `INSERT IGNORE INTO election_disabled_municipalities (election_id, municipality) VALUES (?, ?)`,
		seedGuard:         `INSERT IGNORE INTO schedule_guard (id, version) VALUES (1, 0)`,
		uniqueViolation: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == 1062
		},
		retryable: func(err error) bool {
			var me *mysql.MySQLError
			// 1213 死锁，1205 锁等待超时
			return errors.As(err, &me) && (me.Number == 1213 || me.Number == 1205)
		},
	}

	Postgres = &Dialect{
		Name:              "postgres",
		DriverName:        "pgx",
		numbered:          true,
		upsertTally:       tallyInsert + conflictIncrement,
		insertDisabledMun: `INSERT INTO election_disabled_municipalities (election_id, municipality) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		seedGuard:         `INSERT INTO schedule_guard (id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
		uniqueViolation: func(err error) bool {
			var pe *pgconn.PgError
			return errors.As(err, &pe) && pe.Code == "23505"
		},
		retryable: func(err error) bool {
			var pe *pgconn.PgError
			return errors.As(err, &pe) && (pe.Code == "40001" || pe.Code == "40P01")
		},
	}

	SQLite = &Dialect{
		Name:              "sqlite",
		DriverName:        "sqlite",
		upsertTally:       tallyInsert + conflictIncrement,
		insertDisabledMun: `INSERT INTO election_disabled_municipalities (election_id, municipality) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		seedGuard:         `INSERT INTO schedule_guard (id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
		uniqueViolation: func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
		},
		retryable: func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "SQLITE_BUSY")
		},
	}
)

const conflictIncrement = `
	ON CONFLICT (election_id, encoded_mayor_id, encoded_deputy_mayor_id) DO UPDATE SET
	mayor_votes = tally_counters.mayor_votes + 1,
	deputy_mayor_votes = tally_counters.deputy_mayor_votes + 1`

// DialectFor 按配置中的驱动名返回方言
func DialectFor(driver string) (*Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL, nil
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", driver)
	}
}

// Rebind 将 ? 占位符改写为方言所需的形式
func (d *Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// IsUniqueViolation 是否为唯一约束冲突
func (d *Dialect) IsUniqueViolation(err error) bool {
	return d.uniqueViolation(err)
}
