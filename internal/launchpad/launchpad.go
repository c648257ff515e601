// Package launchpad serves the mock token sale listings.
package launchpad

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the sale phase of a project
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusEnded    Status = "ended"
)

// Project is one launchpad listing
type Project struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"`
	Website     string          `json:"website,omitempty"`
	TokenPrice  decimal.Decimal `json:"tokenPrice"` // in USD
	RaiseTarget decimal.Decimal `json:"raiseTarget"`
	Raised      decimal.Decimal `json:"raised"`
	StartsAt    time.Time       `json:"startsAt"`
	EndsAt      time.Time       `json:"endsAt"`

	// derived on read
	Status   Status `json:"status"`
	Progress string `json:"progress"` // percent of target, two decimals
}

// Catalog is an immutable project list evaluated against a clock
type Catalog struct {
	projects []Project
	now      func() time.Time
}

// NewCatalog creates a catalog. A nil now uses time.Now.
func NewCatalog(projects []Project, now func() time.Time) *Catalog {
	if now == nil {
		now = time.Now
	}
	sorted := append([]Project(nil), projects...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartsAt.Before(sorted[j].StartsAt)
	})
	return &Catalog{projects: sorted, now: now}
}

var hundred = decimal.NewFromInt(100)

func (c *Catalog) evaluate(p Project, now time.Time) Project {
	switch {
	case now.Before(p.StartsAt):
		p.Status = StatusUpcoming
	case now.Before(p.EndsAt) && p.Raised.LessThan(p.RaiseTarget):
		p.Status = StatusLive
	default:
		p.Status = StatusEnded
	}

	progress := decimal.Zero
	if p.RaiseTarget.IsPositive() {
		progress = decimal.Min(p.Raised.Div(p.RaiseTarget).Mul(hundred), hundred)
	}
	p.Progress = progress.StringFixed(2)
	return p
}

// List returns projects ordered by start time. An empty status lists all.
func (c *Catalog) List(status Status) []Project {
	now := c.now()
	out := make([]Project, 0, len(c.projects))
	for _, p := range c.projects {
		p = c.evaluate(p, now)
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get returns one project by id, case-insensitively
func (c *Catalog) Get(id string) (Project, bool) {
	for _, p := range c.projects {
		if strings.EqualFold(p.ID, id) {
			return c.evaluate(p, c.now()), true
		}
	}
	return Project{}, false
}

// DefaultProjects returns the built-in listings, scheduled relative to now
func DefaultProjects(now time.Time) []Project {
	day := 24 * time.Hour
	return []Project{
		{
			ID:          "harvest-dao",
			Name:        "Harvest DAO",
			Symbol:      "HRV",
			Description: "Community treasury for yield farm governance.",
			TokenPrice:  decimal.RequireFromString("0.05"),
			RaiseTarget: decimal.NewFromInt(250_000),
			Raised:      decimal.NewFromInt(181_250),
			StartsAt:    now.Add(-3 * day),
			EndsAt:      now.Add(4 * day),
		},
		{
			ID:          "seedling",
			Name:        "Seedling Protocol",
			Symbol:      "SEED",
			Description: "Liquidity bootstrapping for new pairs.",
			TokenPrice:  decimal.RequireFromString("0.12"),
			RaiseTarget: decimal.NewFromInt(500_000),
			Raised:      decimal.Zero,
			StartsAt:    now.Add(5 * day),
			EndsAt:      now.Add(12 * day),
		},
		{
			ID:          "tractor-nft",
			Name:        "Tractor NFT",
			Symbol:      "TRCT",
			Description: "Collectible farm equipment with staking boosts.",
			TokenPrice:  decimal.RequireFromString("0.8"),
			RaiseTarget: decimal.NewFromInt(100_000),
			Raised:      decimal.NewFromInt(100_000),
			StartsAt:    now.Add(-20 * day),
			EndsAt:      now.Add(-10 * day),
		},
	}
}
