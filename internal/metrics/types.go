package metrics

// Throughput counts task flow over a period.
type Throughput struct {
	TasksCreated      int     `json:"tasks_created"`
	TasksCompleted    int     `json:"tasks_completed"`
	SubtasksCompleted int     `json:"subtasks_completed"`
	NetNew            int     `json:"net_new"`
	OpenAtPeriodEnd   int     `json:"open_at_period_end"`
	CompletionRate    float64 `json:"completion_rate"`
}

// Health describes the state of open work.
type Health struct {
	OverdueCount      int     `json:"overdue_count"`
	UnassignedCount   int     `json:"unassigned_count"`
	StaleCount        int     `json:"stale_count"`
	BlockerCount      int     `json:"blocker_count"`
	TotalOpen         int     `json:"total_open"`
	OverduePct        float64 `json:"overdue_pct"`
	UnassignedPct     float64 `json:"unassigned_pct"`
	StatusUpdateCount int     `json:"status_update_count"`
	LatestStatusType  string  `json:"latest_status_type,omitempty"`
	LatestStatusTitle string  `json:"latest_status_title,omitempty"`
}

// LeadTime summarizes days-to-complete for tasks completed in the period.
type LeadTime struct {
	Avg    *float64 `json:"avg_days_to_complete"`
	Median *float64 `json:"median_days_to_complete"`
	P90    *float64 `json:"p90_days_to_complete"`
	Min    *int     `json:"min_days_to_complete"`
	Max    *int     `json:"max_days_to_complete"`
}

// Collaboration counts interaction on tasks touched in the period.
type Collaboration struct {
	TotalComments       int `json:"total_comments"`
	UniqueCommenters    int `json:"unique_commenters"`
	UniqueCollaborators int `json:"unique_collaborators"`
	CommentsAuthored    int `json:"comments_authored"`
	TasksWithFollowers  int `json:"tasks_with_followers"`
	TotalLikes          int `json:"total_likes"`
}

// UserMetrics aggregates a user's activity over a period.
type UserMetrics struct {
	UserGID       string        `json:"user_gid"`
	UserName      string        `json:"user_name,omitempty"`
	PeriodKey     string        `json:"period_key"`
	Throughput    Throughput    `json:"throughput"`
	LeadTime      LeadTime      `json:"lead_time"`
	Collaboration Collaboration `json:"collaboration"`
	// Prior holds the prior-period comparison when requested; the prior
	// side of a current period is computed to-date.
	Prior *UserMetrics `json:"prior,omitempty"`
}

// ProjectMetrics aggregates a project's activity over a period.
type ProjectMetrics struct {
	ProjectGID    string          `json:"project_gid"`
	ProjectName   string          `json:"project_name,omitempty"`
	PeriodKey     string          `json:"period_key"`
	Throughput    Throughput      `json:"throughput"`
	Health        Health          `json:"health"`
	LeadTime      LeadTime        `json:"lead_time"`
	Collaboration Collaboration   `json:"collaboration"`
	Prior         *ProjectMetrics `json:"prior,omitempty"`
}

// PortfolioMetrics aggregates the projects of a portfolio (including
// recursively contained sub-portfolios) over a period.
type PortfolioMetrics struct {
	PortfolioGID  string            `json:"portfolio_gid"`
	PortfolioName string            `json:"portfolio_name,omitempty"`
	PeriodKey     string            `json:"period_key"`
	ProjectCount  int               `json:"project_count"`
	Throughput    Throughput        `json:"throughput"`
	Health        Health            `json:"health"`
	LeadTime      LeadTime          `json:"lead_time"`
	Collaboration Collaboration     `json:"collaboration"`
	Prior         *PortfolioMetrics `json:"prior,omitempty"`
}

// MemberMetrics is the per-member breakdown inside team metrics.
type MemberMetrics struct {
	UserGID        string `json:"user_gid"`
	UserName       string `json:"user_name,omitempty"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksCreated   int    `json:"tasks_created"`
	OpenTasks      int    `json:"open_tasks"`
}

// TeamMetrics aggregates a team's members and projects over a period.
type TeamMetrics struct {
	TeamGID       string          `json:"team_gid"`
	TeamName      string          `json:"team_name,omitempty"`
	PeriodKey     string          `json:"period_key"`
	MemberCount   int             `json:"member_count"`
	Members       []MemberMetrics `json:"members,omitempty"`
	Throughput    Throughput      `json:"throughput"`
	Health        Health          `json:"health"`
	LeadTime      LeadTime        `json:"lead_time"`
	Collaboration Collaboration   `json:"collaboration"`
	Prior         *TeamMetrics    `json:"prior,omitempty"`
}
