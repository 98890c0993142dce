package forge

import "sort"

// UserState is the per-user aggregate of accumulated gamification outcomes.
// It is created on first reward and mutated only by the rewards system.
type UserState struct {
	UserId                 string           `json:"userId"`
	PointsByCategory       map[string]int64 `json:"pointsByCategory"`
	BadgeIds               map[string]bool  `json:"badgeIds"`
	TrophyIds              map[string]bool  `json:"trophyIds"`
	CurrentLevelByCategory map[string]string `json:"currentLevelByCategory"`
}

// NewUserState returns an empty state for a user.
func NewUserState(userId string) *UserState {
	return &UserState{
		UserId:                 userId,
		PointsByCategory:       make(map[string]int64),
		BadgeIds:               make(map[string]bool),
		TrophyIds:              make(map[string]bool),
		CurrentLevelByCategory: make(map[string]string),
	}
}

// Clone returns a deep copy so callers can hand state out without exposing
// the mutable aggregate.
func (u *UserState) Clone() *UserState {
	if u == nil {
		return nil
	}
	c := NewUserState(u.UserId)
	for k, v := range u.PointsByCategory {
		c.PointsByCategory[k] = v
	}
	for k, v := range u.BadgeIds {
		c.BadgeIds[k] = v
	}
	for k, v := range u.TrophyIds {
		c.TrophyIds[k] = v
	}
	for k, v := range u.CurrentLevelByCategory {
		c.CurrentLevelByCategory[k] = v
	}
	return c
}

// BadgeList returns the earned badge ids in stable order.
func (u *UserState) BadgeList() []string {
	return sortedKeys(u.BadgeIds)
}

// TrophyList returns the earned trophy ids in stable order.
func (u *UserState) TrophyList() []string {
	return sortedKeys(u.TrophyIds)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Aggregation modes for point categories.
const (
	AggregationSum  = "sum"
	AggregationMax  = "max"
	AggregationLast = "last"
)

// PointCategory describes one named point pool.
type PointCategory struct {
	Id                     string `json:"id"`
	Name                   string `json:"name,omitempty"`
	Aggregation            string `json:"aggregation,omitempty"`
	NegativeBalanceAllowed bool   `json:"negative_balance_allowed,omitempty"`
	IsSpendable            bool   `json:"is_spendable,omitempty"`
}

// BadgeDescriptor describes an earnable badge.
type BadgeDescriptor struct {
	Id          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageUrl    string `json:"image_url,omitempty"`
	Visible     bool   `json:"visible,omitempty"`
}

// TrophyDescriptor describes an earnable trophy.
type TrophyDescriptor struct {
	Id          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageUrl    string `json:"image_url,omitempty"`
	Visible     bool   `json:"visible,omitempty"`
}

// LevelDescriptor describes a level threshold within a point category.
type LevelDescriptor struct {
	Id         string `json:"id"`
	CategoryId string `json:"category_id"`
	MinPoints  int64  `json:"min_points"`
	Name       string `json:"name,omitempty"`
}

// CatalogConfig is the static descriptor set loaded at startup.
type CatalogConfig struct {
	Categories []*PointCategory    `json:"categories,omitempty"`
	Badges     []*BadgeDescriptor  `json:"badges,omitempty"`
	Trophies   []*TrophyDescriptor `json:"trophies,omitempty"`
	Levels     []*LevelDescriptor  `json:"levels,omitempty"`
	EventTypes []*EventDescriptor  `json:"event_types,omitempty"`
}

// Catalog indexes the descriptor set for lookup during reward application.
type Catalog struct {
	categories map[string]*PointCategory
	badges     map[string]*BadgeDescriptor
	trophies   map[string]*TrophyDescriptor
	// levels by category, sorted by MinPoints ascending then id.
	levelsByCategory map[string][]*LevelDescriptor
	eventTypes       []*EventDescriptor
}

// NewCatalog builds a Catalog from its configuration. A nil config yields an
// empty catalog, which is valid: categories then default to non-spendable
// summed pools.
func NewCatalog(config *CatalogConfig) *Catalog {
	c := &Catalog{
		categories:       make(map[string]*PointCategory),
		badges:           make(map[string]*BadgeDescriptor),
		trophies:         make(map[string]*TrophyDescriptor),
		levelsByCategory: make(map[string][]*LevelDescriptor),
	}
	if config == nil {
		return c
	}
	for _, cat := range config.Categories {
		c.categories[cat.Id] = cat
	}
	for _, b := range config.Badges {
		c.badges[b.Id] = b
	}
	for _, t := range config.Trophies {
		c.trophies[t.Id] = t
	}
	for _, l := range config.Levels {
		c.levelsByCategory[l.CategoryId] = append(c.levelsByCategory[l.CategoryId], l)
	}
	for _, levels := range c.levelsByCategory {
		sort.Slice(levels, func(i, j int) bool {
			if levels[i].MinPoints != levels[j].MinPoints {
				return levels[i].MinPoints < levels[j].MinPoints
			}
			return levels[i].Id < levels[j].Id
		})
	}
	c.eventTypes = config.EventTypes
	return c
}

// Category returns the descriptor for a category id, or a default descriptor
// for categories never declared in the catalog.
func (c *Catalog) Category(id string) *PointCategory {
	if cat, ok := c.categories[id]; ok {
		return cat
	}
	return &PointCategory{Id: id, Aggregation: AggregationSum, NegativeBalanceAllowed: true}
}

// Badge returns the badge descriptor for an id, or nil.
func (c *Catalog) Badge(id string) *BadgeDescriptor { return c.badges[id] }

// Trophy returns the trophy descriptor for an id, or nil.
func (c *Catalog) Trophy(id string) *TrophyDescriptor { return c.trophies[id] }

// EventTypes returns the configured event-type descriptors.
func (c *Catalog) EventTypes() []*EventDescriptor { return c.eventTypes }

// LevelFor resolves the level for a point total in a category: the level with
// the highest MinPoints not exceeding the total. Ties on MinPoints resolve to
// the lexically first level id. Returns "" when the category has no levels or
// no threshold is reached.
func (c *Catalog) LevelFor(categoryId string, points int64) string {
	levels := c.levelsByCategory[categoryId]
	levelId := ""
	best := int64(0)
	for _, l := range levels {
		if l.MinPoints > points {
			break
		}
		// The slice is sorted by MinPoints then id, so the first level seen
		// for a given MinPoints wins ties.
		if levelId == "" || l.MinPoints > best {
			levelId = l.Id
			best = l.MinPoints
		}
	}
	return levelId
}

// HasLevels reports whether any levels are configured for a category.
func (c *Catalog) HasLevels(categoryId string) bool {
	return len(c.levelsByCategory[categoryId]) > 0
}
