package repository

import (
	"context"
	"fmt"
)

// 时间统一以UTC微秒整数存储，避免各驱动时间类型的差异
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS elections (
		election_id VARCHAR(64) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		start_us BIGINT NOT NULL,
		end_us BIGINT NOT NULL,
		district VARCHAR(128) NOT NULL DEFAULT '',
		municipality VARCHAR(128) NOT NULL DEFAULT '',
		is_terminated BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS election_disabled_municipalities (
		election_id VARCHAR(64) NOT NULL,
		municipality VARCHAR(128) NOT NULL,
		PRIMARY KEY (election_id, municipality)
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_guard (
		id INT NOT NULL PRIMARY KEY,
		version BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS candidate_sets (
		set_id VARCHAR(36) NOT NULL PRIMARY KEY,
		election_id VARCHAR(64) NOT NULL,
		district VARCHAR(128) NOT NULL,
		municipality VARCHAR(128) NOT NULL,
		UNIQUE (election_id, district, municipality)
	)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		candidate_id VARCHAR(64) NOT NULL PRIMARY KEY,
		set_id VARCHAR(36) NOT NULL,
		candidate_role VARCHAR(16) NOT NULL,
		seq INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		party VARCHAR(128) NOT NULL,
		UNIQUE (set_id, candidate_role, party)
	)`,
	`CREATE TABLE IF NOT EXISTS ballots (
		ballot_id VARCHAR(36) NOT NULL PRIMARY KEY,
		voter_id VARCHAR(128) NOT NULL,
		election_id VARCHAR(64) NOT NULL,
		district VARCHAR(128) NOT NULL,
		municipality VARCHAR(128) NOT NULL,
		encoded_mayor_id VARCHAR(80) NOT NULL,
		encoded_deputy_mayor_id VARCHAR(80) NOT NULL,
		mayor_party VARCHAR(128) NOT NULL,
		deputy_mayor_party VARCHAR(128) NOT NULL,
		cast_us BIGINT NOT NULL,
		UNIQUE (election_id, voter_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tally_counters (
		election_id VARCHAR(64) NOT NULL,
		encoded_mayor_id VARCHAR(80) NOT NULL,
		encoded_deputy_mayor_id VARCHAR(80) NOT NULL,
		mayor_votes BIGINT NOT NULL,
		deputy_mayor_votes BIGINT NOT NULL,
		PRIMARY KEY (election_id, encoded_mayor_id, encoded_deputy_mayor_id)
	)`,
}

// EnsureSchema 建表并写入排期守卫行，可重复执行
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建数据表失败: %w", err)
		}
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.seedGuard); err != nil {
		return fmt.Errorf("初始化排期守卫失败: %w", err)
	}
	return nil
}
