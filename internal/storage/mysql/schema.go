package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full DDL, applied idempotently on startup.
//
// Collation notes:
//   - stages.name and team_members.name use utf8mb4_0900_ai_ci so the unique
//     keys enforce case-insensitive uniqueness and plain equality predicates
//     match case-insensitively. "In Progress" and "IN PROGRESS" are one stage.
//   - demand_transitions carries the (demand_id, stage_id, entered_at)
//     idempotence key; concurrent writers racing on it get a duplicate-entry
//     error the callers recover from by re-querying.
//   - DATETIME(6) everywhere: tracker feeds carry sub-second precision and
//     truncating it would merge distinct events onto one idempotence key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id    BIGINT NOT NULL AUTO_INCREMENT,
		name  VARCHAR(255) NOT NULL,
		email VARCHAR(191) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_user_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS team_members (
		id         BIGINT NOT NULL AUTO_INCREMENT,
		company_id BIGINT NOT NULL,
		name       VARCHAR(191) NOT NULL COLLATE utf8mb4_0900_ai_ci,
		user_id    BIGINT NULL,
		start_date DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_member_name (company_id, name),
		CONSTRAINT fk_member_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS stages (
		id                   BIGINT NOT NULL AUTO_INCREMENT,
		company_id           BIGINT NOT NULL,
		integration_identity VARCHAR(191) NOT NULL,
		name                 VARCHAR(191) NOT NULL COLLATE utf8mb4_0900_ai_ci,
		trashcan             TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_stage_name (company_id, integration_identity, name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS demands (
		id           BIGINT NOT NULL AUTO_INCREMENT,
		external_id  VARCHAR(191) NOT NULL,
		project_id   BIGINT NOT NULL,
		team_id      BIGINT NOT NULL,
		created_date DATETIME(6) NOT NULL,
		discarded_at DATETIME(6) NULL,
		created_at   DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at   DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		UNIQUE KEY uniq_demand_external (project_id, external_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS stage_projects (
		stage_id   BIGINT NOT NULL,
		project_id BIGINT NOT NULL,
		PRIMARY KEY (stage_id, project_id),
		CONSTRAINT fk_sp_stage FOREIGN KEY (stage_id) REFERENCES stages (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS demand_transitions (
		id                  BIGINT NOT NULL AUTO_INCREMENT,
		demand_id           BIGINT NOT NULL,
		stage_id            BIGINT NOT NULL,
		entered_at          DATETIME(6) NOT NULL,
		exited_at           DATETIME(6) NULL,
		team_member_id      BIGINT NULL,
		transition_notified TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_transition (demand_id, stage_id, entered_at),
		KEY idx_open_transition (demand_id, exited_at),
		CONSTRAINT fk_dt_demand FOREIGN KEY (demand_id) REFERENCES demands (id) ON DELETE CASCADE,
		CONSTRAINT fk_dt_stage  FOREIGN KEY (stage_id) REFERENCES stages (id),
		CONSTRAINT fk_dt_member FOREIGN KEY (team_member_id) REFERENCES team_members (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS item_assignments (
		id                  BIGINT NOT NULL AUTO_INCREMENT,
		demand_id           BIGINT NOT NULL,
		team_member_id      BIGINT NOT NULL,
		start_time          DATETIME(6) NOT NULL,
		finish_time         DATETIME(6) NULL,
		assignment_notified TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		KEY idx_assignment_demand (demand_id),
		CONSTRAINT fk_ia_demand FOREIGN KEY (demand_id) REFERENCES demands (id) ON DELETE CASCADE,
		CONSTRAINT fk_ia_member FOREIGN KEY (team_member_id) REFERENCES team_members (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS demand_blocks (
		id                BIGINT NOT NULL AUTO_INCREMENT,
		demand_id         BIGINT NOT NULL,
		blocker_id        BIGINT NULL,
		block_time        DATETIME(6) NOT NULL,
		unblock_time      DATETIME(6) NULL,
		block_notified    TINYINT(1) NOT NULL DEFAULT 0,
		unblock_notified  TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		KEY idx_block_demand (demand_id),
		CONSTRAINT fk_db_demand FOREIGN KEY (demand_id) REFERENCES demands (id) ON DELETE CASCADE,
		CONSTRAINT fk_db_member FOREIGN KEY (blocker_id) REFERENCES team_members (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS config (
		cfg_key   VARCHAR(191) NOT NULL,
		cfg_value TEXT NOT NULL,
		PRIMARY KEY (cfg_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// bootstrap applies the schema. Every statement is idempotent, so running it
// on an already-initialized database is a no-op.
func bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
