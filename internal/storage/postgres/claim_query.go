package postgres

import (
	"strconv"
	"strings"

	"github.com/m3rciful/claimdesk/internal/domain"
)

const maxClaimPageSize = 500

// ClaimQuery renders a domain.ClaimFilter into SQL. List and Count share the
// same WHERE clause and argument list.
type ClaimQuery struct {
	where  []string
	args   []any
	limit  int
	offset int
}

// NewClaimQuery builds the clauses for f. Both date bounds are inclusive and
// used as given; widening a bare day is the caller's job.
func NewClaimQuery(f domain.ClaimFilter) ClaimQuery {
	q := ClaimQuery{}
	if f.UserID != 0 {
		q.add("c.user_id = ", f.UserID)
	}
	if f.Status != "" {
		q.add("c.claim_status = ", string(f.Status))
	}
	if f.DateFrom != nil {
		q.add("c.created_at >= ", *f.DateFrom)
	}
	if f.DateTo != nil {
		q.add("c.created_at <= ", *f.DateTo)
	}

	size := f.PageSize
	if size <= 0 {
		size = domain.DefaultClaimPageSize
	}
	if size > maxClaimPageSize {
		size = maxClaimPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	q.limit = size
	q.offset = (page - 1) * size
	return q
}

func (q *ClaimQuery) add(cond string, arg any) {
	q.args = append(q.args, arg)
	q.where = append(q.where, cond+"$"+strconv.Itoa(len(q.args)))
}

func (q ClaimQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// ListSQL returns the paged select, newest first.
func (q ClaimQuery) ListSQL() (string, []any) {
	args := append([]any(nil), q.args...)
	args = append(args, q.limit, q.offset)
	n := len(q.args)
	sql := `SELECT c.*, u.username,
		EXISTS (SELECT 1 FROM chat_sessions s WHERE s.claim_id = c.claim_id AND s.is_active) AS is_chat_active
		FROM claims c LEFT JOIN users u ON u.tg_id = c.user_id` +
		q.whereSQL() +
		" ORDER BY c.created_at DESC, c.claim_id DESC" +
		" LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	return sql, args
}

// CountSQL returns the total matching rows for the same filter.
func (q ClaimQuery) CountSQL() (string, []any) {
	return "SELECT count(*) FROM claims c" + q.whereSQL(), append([]any(nil), q.args...)
}
