package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/flowyard/flowyard/internal/types"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same query code serves both the store and its transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements every data operation over a dbtx. Store and mysqlTx both
// embed it.
type queries struct {
	db dbtx
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Demands

func (q *queries) GetDemandByExternalID(ctx context.Context, projectID int64, externalID string) (*types.Demand, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, external_id, project_id, team_id, created_date, discarded_at, created_at, updated_at
		FROM demands WHERE project_id = ? AND external_id = ?`,
		projectID, externalID)
	return scanDemand(row)
}

func scanDemand(row *sql.Row) (*types.Demand, error) {
	var d types.Demand
	var discarded sql.NullTime
	err := row.Scan(&d.ID, &d.ExternalID, &d.ProjectID, &d.TeamID, &d.CreatedDate, &discarded, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, wrapErr("get demand", err)
	}
	d.DiscardedAt = timePtr(discarded)
	return &d, nil
}

func (q *queries) CreateDemand(ctx context.Context, d *types.Demand) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO demands (external_id, project_id, team_id, created_date, discarded_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ExternalID, d.ProjectID, d.TeamID, d.CreatedDate.UTC(), nullTime(d.DiscardedAt))
	if err != nil {
		return wrapErr("create demand", err)
	}
	d.ID, err = res.LastInsertId()
	return wrapErr("create demand", err)
}

func (q *queries) UpdateDemandDiscard(ctx context.Context, demandID int64, discardedAt *time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE demands SET discarded_at = ? WHERE id = ?`,
		nullTime(discardedAt), demandID)
	return wrapErr("update demand discard", err)
}

func (q *queries) DeleteDemand(ctx context.Context, demandID int64) error {
	// Transitions, assignments and blocks cascade via foreign keys.
	res, err := q.db.ExecContext(ctx, `DELETE FROM demands WHERE id = ?`, demandID)
	if err != nil {
		return wrapErr("delete demand", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrapErr("delete demand", sql.ErrNoRows)
	}
	return nil
}

func (q *queries) ListDemands(ctx context.Context, projectID int64) ([]*types.Demand, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, external_id, project_id, team_id, created_date, discarded_at, created_at, updated_at
		FROM demands WHERE project_id = ? ORDER BY id`,
		projectID)
	if err != nil {
		return nil, wrapErr("list demands", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Demand
	for rows.Next() {
		var d types.Demand
		var discarded sql.NullTime
		if err := rows.Scan(&d.ID, &d.ExternalID, &d.ProjectID, &d.TeamID, &d.CreatedDate, &discarded, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, wrapErr("list demands", err)
		}
		d.DiscardedAt = timePtr(discarded)
		out = append(out, &d)
	}
	return out, wrapErr("list demands", rows.Err())
}

// Stages

func (q *queries) FindStage(ctx context.Context, companyID int64, integrationIdentity, name string) (*types.Stage, error) {
	// Case-insensitive match via the column's ai_ci collation.
	var s types.Stage
	err := q.db.QueryRowContext(ctx, `
		SELECT id, company_id, integration_identity, name, trashcan
		FROM stages WHERE company_id = ? AND integration_identity = ? AND name = ?`,
		companyID, integrationIdentity, name).
		Scan(&s.ID, &s.CompanyID, &s.IntegrationIdentity, &s.Name, &s.Trashcan)
	if err != nil {
		return nil, wrapErr("find stage", err)
	}
	return &s, nil
}

func (q *queries) CreateStage(ctx context.Context, stage *types.Stage) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO stages (company_id, integration_identity, name, trashcan)
		VALUES (?, ?, ?, ?)`,
		stage.CompanyID, stage.IntegrationIdentity, stage.Name, stage.Trashcan)
	if err != nil {
		return wrapErr("create stage", err)
	}
	stage.ID, err = res.LastInsertId()
	return wrapErr("create stage", err)
}

func (q *queries) AddStageToProject(ctx context.Context, stageID, projectID int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stage_projects (stage_id, project_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE stage_id = stage_id`,
		stageID, projectID)
	return wrapErr("add stage to project", err)
}

func (q *queries) ListStages(ctx context.Context, companyID int64) ([]*types.Stage, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, company_id, integration_identity, name, trashcan
		FROM stages WHERE company_id = ? ORDER BY integration_identity, name`,
		companyID)
	if err != nil {
		return nil, wrapErr("list stages", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Stage
	for rows.Next() {
		var s types.Stage
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.IntegrationIdentity, &s.Name, &s.Trashcan); err != nil {
			return nil, wrapErr("list stages", err)
		}
		out = append(out, &s)
	}
	return out, wrapErr("list stages", rows.Err())
}

// Transitions

const transitionCols = `id, demand_id, stage_id, entered_at, exited_at, team_member_id, transition_notified`

func scanTransition(row *sql.Row) (*types.DemandTransition, error) {
	var t types.DemandTransition
	var exited sql.NullTime
	var member sql.NullInt64
	err := row.Scan(&t.ID, &t.DemandID, &t.StageID, &t.EnteredAt, &exited, &member, &t.TransitionNotified)
	if err != nil {
		return nil, err
	}
	t.ExitedAt = timePtr(exited)
	if member.Valid {
		id := member.Int64
		t.TeamMemberID = &id
	}
	return &t, nil
}

func (q *queries) GetOpenTransition(ctx context.Context, demandID int64) (*types.DemandTransition, error) {
	t, err := scanTransition(q.db.QueryRowContext(ctx, `
		SELECT `+transitionCols+` FROM demand_transitions
		WHERE demand_id = ? AND exited_at IS NULL
		ORDER BY entered_at DESC LIMIT 1`,
		demandID))
	if err != nil {
		return nil, wrapErr("get open transition", err)
	}
	return t, nil
}

func (q *queries) FindTransition(ctx context.Context, demandID, stageID int64, enteredAt time.Time) (*types.DemandTransition, error) {
	t, err := scanTransition(q.db.QueryRowContext(ctx, `
		SELECT `+transitionCols+` FROM demand_transitions
		WHERE demand_id = ? AND stage_id = ? AND entered_at = ?`,
		demandID, stageID, enteredAt.UTC()))
	if err != nil {
		return nil, wrapErr("find transition", err)
	}
	return t, nil
}

func (q *queries) LatestOpenTransitionInStage(ctx context.Context, demandID, stageID int64) (*types.DemandTransition, error) {
	t, err := scanTransition(q.db.QueryRowContext(ctx, `
		SELECT `+transitionCols+` FROM demand_transitions
		WHERE demand_id = ? AND stage_id = ? AND exited_at IS NULL
		ORDER BY entered_at DESC LIMIT 1`,
		demandID, stageID))
	if err != nil {
		return nil, wrapErr("latest open transition in stage", err)
	}
	return t, nil
}

func (q *queries) CreateTransition(ctx context.Context, t *types.DemandTransition) error {
	var member any
	if t.TeamMemberID != nil {
		member = *t.TeamMemberID
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO demand_transitions (demand_id, stage_id, entered_at, exited_at, team_member_id, transition_notified)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.DemandID, t.StageID, t.EnteredAt.UTC(), nullTime(t.ExitedAt), member, t.TransitionNotified)
	if err != nil {
		return wrapErr("create transition", err)
	}
	t.ID, err = res.LastInsertId()
	return wrapErr("create transition", err)
}

func (q *queries) UpdateTransition(ctx context.Context, t *types.DemandTransition) error {
	var member any
	if t.TeamMemberID != nil {
		member = *t.TeamMemberID
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE demand_transitions
		SET exited_at = ?, team_member_id = ?, transition_notified = ?
		WHERE id = ?`,
		nullTime(t.ExitedAt), member, t.TransitionNotified, t.ID)
	return wrapErr("update transition", err)
}

func (q *queries) ListTransitions(ctx context.Context, demandID int64) ([]*types.DemandTransition, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+transitionCols+` FROM demand_transitions
		WHERE demand_id = ? ORDER BY entered_at, id`,
		demandID)
	if err != nil {
		return nil, wrapErr("list transitions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.DemandTransition
	for rows.Next() {
		var t types.DemandTransition
		var exited sql.NullTime
		var member sql.NullInt64
		if err := rows.Scan(&t.ID, &t.DemandID, &t.StageID, &t.EnteredAt, &exited, &member, &t.TransitionNotified); err != nil {
			return nil, wrapErr("list transitions", err)
		}
		t.ExitedAt = timePtr(exited)
		if member.Valid {
			id := member.Int64
			t.TeamMemberID = &id
		}
		out = append(out, &t)
	}
	return out, wrapErr("list transitions", rows.Err())
}

func (q *queries) DeleteTransitionsExcept(ctx context.Context, demandID int64, keep []int64) (int, error) {
	query := `DELETE FROM demand_transitions WHERE demand_id = ?`
	args := []any{demandID}
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr("delete transitions", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapErr("delete transitions", err)
}

// Team members and users

func (q *queries) FindTeamMemberByName(ctx context.Context, companyID int64, name string) (*types.TeamMember, error) {
	var m types.TeamMember
	var userID sql.NullInt64
	err := q.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, user_id, start_date
		FROM team_members WHERE company_id = ? AND name = ?`,
		companyID, name).
		Scan(&m.ID, &m.CompanyID, &m.Name, &userID, &m.StartDate)
	if err != nil {
		return nil, wrapErr("find team member", err)
	}
	if userID.Valid {
		id := userID.Int64
		m.UserID = &id
	}
	return &m, nil
}

func (q *queries) CreateTeamMember(ctx context.Context, m *types.TeamMember) error {
	var userID any
	if m.UserID != nil {
		userID = *m.UserID
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO team_members (company_id, name, user_id, start_date)
		VALUES (?, ?, ?, ?)`,
		m.CompanyID, m.Name, userID, m.StartDate.UTC())
	if err != nil {
		return wrapErr("create team member", err)
	}
	m.ID, err = res.LastInsertId()
	return wrapErr("create team member", err)
}

func (q *queries) LinkTeamMemberUser(ctx context.Context, memberID, userID int64) error {
	// First link wins; a member already linked elsewhere is left alone.
	_, err := q.db.ExecContext(ctx, `
		UPDATE team_members SET user_id = ?
		WHERE id = ? AND (user_id IS NULL OR user_id = ?)`,
		userID, memberID, userID)
	return wrapErr("link team member", err)
}

func (q *queries) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	var u types.User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		return nil, wrapErr("find user by email", err)
	}
	return &u, nil
}

// Assignments, blocks, notification flags

func (q *queries) ListOpenAssignments(ctx context.Context, demandID int64) ([]*types.ItemAssignment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, demand_id, team_member_id, start_time, finish_time, assignment_notified
		FROM item_assignments
		WHERE demand_id = ? AND finish_time IS NULL ORDER BY start_time, id`,
		demandID)
	if err != nil {
		return nil, wrapErr("list open assignments", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ItemAssignment
	for rows.Next() {
		var a types.ItemAssignment
		var finish sql.NullTime
		if err := rows.Scan(&a.ID, &a.DemandID, &a.TeamMemberID, &a.StartTime, &finish, &a.AssignmentNotified); err != nil {
			return nil, wrapErr("list open assignments", err)
		}
		a.FinishTime = timePtr(finish)
		out = append(out, &a)
	}
	return out, wrapErr("list open assignments", rows.Err())
}

func (q *queries) ListBlocks(ctx context.Context, demandID int64) ([]*types.DemandBlock, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, demand_id, blocker_id, block_time, unblock_time, block_notified, unblock_notified
		FROM demand_blocks WHERE demand_id = ? ORDER BY block_time, id`,
		demandID)
	if err != nil {
		return nil, wrapErr("list blocks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.DemandBlock
	for rows.Next() {
		var b types.DemandBlock
		var blocker sql.NullInt64
		var unblock sql.NullTime
		if err := rows.Scan(&b.ID, &b.DemandID, &blocker, &b.BlockTime, &unblock, &b.BlockNotified, &b.UnblockNotified); err != nil {
			return nil, wrapErr("list blocks", err)
		}
		if blocker.Valid {
			id := blocker.Int64
			b.BlockerID = &id
		}
		b.UnblockTime = timePtr(unblock)
		out = append(out, &b)
	}
	return out, wrapErr("list blocks", rows.Err())
}

func (q *queries) MarkTransitionNotified(ctx context.Context, transitionID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE demand_transitions SET transition_notified = 1 WHERE id = ?`, transitionID)
	return wrapErr("mark transition notified", err)
}

func (q *queries) MarkAssignmentNotified(ctx context.Context, assignmentID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE item_assignments SET assignment_notified = 1 WHERE id = ?`, assignmentID)
	return wrapErr("mark assignment notified", err)
}

func (q *queries) MarkBlockNotified(ctx context.Context, blockID int64, unblock bool) error {
	col := "block_notified"
	if unblock {
		col = "unblock_notified"
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE demand_blocks SET `+col+` = 1 WHERE id = ?`, blockID)
	return wrapErr("mark block notified", err)
}

// Config

func (q *queries) SetConfig(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO config (cfg_key, cfg_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE cfg_value = VALUES(cfg_value)`,
		key, value)
	return wrapErr("set config", err)
}

func (q *queries) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx,
		`SELECT cfg_value FROM config WHERE cfg_key = ?`, key).Scan(&value)
	if err != nil {
		return "", wrapErr("get config", err)
	}
	return value, nil
}
