package identity

import (
	"database/sql"
	"fmt"
)

// Mysql resolves roles from the user_roles table
type Mysql struct {
	Db *sql.DB
}

type NewMysqlOpts struct {
	Db *sql.DB
}

func NewMysql(opts NewMysqlOpts) (*Mysql, error) {
	if opts.Db == nil {
		return nil, fmt.Errorf("failed to receive a database connection")
	}
	return &Mysql{Db: opts.Db}, nil
}

func (p *Mysql) GetRoles(userId string) ([]string, error) {
	stmt, err := p.Db.Prepare(`
		SELECT role FROM user_roles
			WHERE user_id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Close()
	rows, err := stmt.Query(userId)
	if err != nil {
		return nil, fmt.Errorf("failed to execute select statement: %w", err)
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to process row[%v]: %w", len(roles), err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return roles, nil
}

var _ RoleProvider = (*Mysql)(nil)
