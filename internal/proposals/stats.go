package proposals

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Stats summarizes proposals for a dashboard.
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[Status]int `json:"by_status"`
	OpenValue    float64        `json:"open_value"`
	ApprovalRate float64        `json:"approval_rate"`
}

// StatsFilter scopes statistics to one agent or client. Zero ids mean "all".
type StatsFilter struct {
	AgentID  uuid.UUID
	ClientID uuid.UUID
}

type StatsReader interface {
	Stats(ctx context.Context, filter StatsFilter) (*Stats, error)
}

type statusCount struct {
	status Status
	count  int
	value  float64
}

func buildStats(counts []statusCount) *Stats {
	st := &Stats{ByStatus: make(map[Status]int, len(allStatuses))}
	for _, s := range allStatuses {
		st.ByStatus[s] = 0
	}
	for _, c := range counts {
		st.ByStatus[c.status] += c.count
		st.Total += c.count
		if c.status.Open() {
			st.OpenValue += c.value
		}
	}
	won := st.ByStatus[StatusApproved] + st.ByStatus[StatusCompleted]
	if decided := won + st.ByStatus[StatusRejected]; decided > 0 {
		st.ApprovalRate = float64(won) / float64(decided)
	}
	return st
}

// SQLStats aggregates with database/sql over the lib/pq driver.
type SQLStats struct {
	db *sql.DB
}

func NewSQLStats(db *sql.DB) *SQLStats {
	if db == nil {
		panic("proposals: sql db required")
	}
	return &SQLStats{db: db}
}

func (s *SQLStats) Stats(ctx context.Context, filter StatsFilter) (*Stats, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(proposed_value), 0)
		FROM proposals
		WHERE status = ANY($1)
			AND ($2::uuid IS NULL OR agent_id = $2::uuid)
			AND ($3::uuid IS NULL OR client_id = $3::uuid)
		GROUP BY status
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusStrings(allStatuses)), nullableID(filter.AgentID), nullableID(filter.ClientID))
	if err != nil {
		return nil, fmt.Errorf("proposals: stats query: %w", err)
	}
	defer rows.Close()

	var counts []statusCount
	for rows.Next() {
		var c statusCount
		var status string
		if err := rows.Scan(&status, &c.count, &c.value); err != nil {
			return nil, fmt.Errorf("proposals: scan stats: %w", err)
		}
		c.status = Status(status)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposals: stats rows: %w", err)
	}
	return buildStats(counts), nil
}

func nullableID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

// Stats computes the same summary from memory.
func (r *InMemoryRepository) Stats(ctx context.Context, filter StatsFilter) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := map[Status]*statusCount{}
	for _, p := range r.proposals {
		if filter.ClientID != uuid.Nil && p.ClientID != filter.ClientID {
			continue
		}
		if filter.AgentID != uuid.Nil && (p.AgentID == nil || *p.AgentID != filter.AgentID) {
			continue
		}
		c, ok := byStatus[p.Status]
		if !ok {
			c = &statusCount{status: p.Status}
			byStatus[p.Status] = c
		}
		c.count++
		c.value += p.ProposedValue
	}
	counts := make([]statusCount, 0, len(byStatus))
	for _, c := range byStatus {
		counts = append(counts, *c)
	}
	return buildStats(counts), nil
}
