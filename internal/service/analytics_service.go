package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"go.uber.org/zap"
)

type TrendPeriod string

const (
	PeriodDaily   TrendPeriod = "daily"
	PeriodWeekly  TrendPeriod = "weekly"
	PeriodMonthly TrendPeriod = "monthly"
)

func (p TrendPeriod) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

const defaultTrendWindow = 30 * 24 * time.Hour

type AnalyticsFilter struct {
	From *time.Time
	To   *time.Time
}

type IncidentSummary struct {
	Total               int                           `json:"total"`
	Active              int                           `json:"active"`
	Critical            int                           `json:"critical"`
	Resolved            int                           `json:"resolved"`
	ResolutionRate      float64                       `json:"resolutionRate"`
	ByStatus            map[entity.IncidentStatus]int `json:"byStatus"`
	ByType              map[entity.IncidentType]int   `json:"byType"`
	ByPriority          map[entity.Priority]int       `json:"byPriority"`
	AverageResponseTime *float64                      `json:"averageResponseTime"`
}

type AlertSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type Dashboard struct {
	Incidents   IncidentSummary   `json:"incidents"`
	Alerts      AlertSummary      `json:"alerts"`
	Users       entity.UserCounts `json:"users"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

type TrendPoint struct {
	Period   string              `json:"period"`
	Type     entity.IncidentType `json:"type"`
	Priority entity.Priority     `json:"priority"`
	Count    int                 `json:"count"`
}

// Hotspot agrège les incidents d'une cellule H3.
type Hotspot struct {
	Cell          string  `json:"cell"`
	Count         int     `json:"count"`
	Critical      int     `json:"critical"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	LocationLabel string  `json:"locationLabel"`
}

type Export struct {
	ContentType string
	FileName    string
	Data        []byte
}

type AnalyticsService interface {
	Dashboard(ctx context.Context, filter AnalyticsFilter) (*Dashboard, error)
	IncidentTrend(ctx context.Context, period TrendPeriod, filter AnalyticsFilter) ([]TrendPoint, error)
	Hotspots(ctx context.Context, limit int, filter AnalyticsFilter) ([]Hotspot, error)
	Export(ctx context.Context, format ExportFormat, filter AnalyticsFilter, actor entity.Identity) (*Export, error)
}

type analyticsService struct {
	incidents repository.IncidentRepository
	alerts    repository.AlertRepository
	users     repository.UserRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewAnalyticsService(
	incidents repository.IncidentRepository,
	alerts repository.AlertRepository,
	users repository.UserRepository,
	logger *zap.Logger,
	now func() time.Time,
) AnalyticsService {
	if now == nil {
		now = time.Now
	}
	return &analyticsService{incidents: incidents, alerts: alerts, users: users, logger: logger, now: now}
}

func (s *analyticsService) Dashboard(ctx context.Context, filter AnalyticsFilter) (*Dashboard, error) {
	items, err := s.incidents.ListBetween(ctx, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}
	alertTotal, err := s.alerts.CountBetween(ctx, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	now := s.now().UTC()
	alertActive, err := s.alerts.CountActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}
	users, err := s.users.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	return &Dashboard{
		Incidents:   summarize(items),
		Alerts:      AlertSummary{Total: alertTotal, Active: alertActive},
		Users:       users,
		GeneratedAt: now,
	}, nil
}

func summarize(items []entity.Incident) IncidentSummary {
	sum := IncidentSummary{
		Total:      len(items),
		ByStatus:   make(map[entity.IncidentStatus]int),
		ByType:     make(map[entity.IncidentType]int),
		ByPriority: make(map[entity.Priority]int),
	}
	var responseTotal float64
	var responded int
	for _, inc := range items {
		sum.ByStatus[inc.Status]++
		sum.ByType[inc.Type]++
		sum.ByPriority[inc.Priority]++
		if !inc.Status.IsTerminal() {
			sum.Active++
		}
		if inc.Priority == entity.PriorityCritical {
			sum.Critical++
		}
		if inc.Status == entity.IncidentResolved || inc.Status == entity.IncidentClosed {
			sum.Resolved++
		}
		if inc.ResponseTime != nil {
			responseTotal += *inc.ResponseTime
			responded++
		}
	}
	if sum.Total > 0 {
		sum.ResolutionRate = round2(float64(sum.Resolved) / float64(sum.Total) * 100)
	}
	if responded > 0 {
		avg := round2(responseTotal / float64(responded))
		sum.AverageResponseTime = &avg
	}
	return sum
}

func (s *analyticsService) IncidentTrend(ctx context.Context, period TrendPeriod, filter AnalyticsFilter) ([]TrendPoint, error) {
	if period == "" {
		period = PeriodDaily
	}
	if !period.IsValid() {
		return nil, apperr.Validation("period", "period must be daily, weekly or monthly")
	}
	if filter.From == nil {
		from := s.now().UTC().Add(-defaultTrendWindow)
		filter.From = &from
	}
	items, err := s.incidents.ListBetween(ctx, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}

	type key struct {
		period   string
		kind     entity.IncidentType
		priority entity.Priority
	}
	counts := make(map[key]int)
	for _, inc := range items {
		counts[key{bucket(inc.CreatedAt, period), inc.Type, inc.Priority}]++
	}

	out := make([]TrendPoint, 0, len(counts))
	for k, n := range counts {
		out = append(out, TrendPoint{Period: k.period, Type: k.kind, Priority: k.priority, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

func bucket(t time.Time, period TrendPeriod) string {
	t = t.UTC()
	switch period {
	case PeriodWeekly:
		// semaine ISO commençant le lundi
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	case PeriodMonthly:
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

func (s *analyticsService) Hotspots(ctx context.Context, limit int, filter AnalyticsFilter) ([]Hotspot, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 10
	}
	items, err := s.incidents.ListBetween(ctx, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}

	cells := make(map[string]*Hotspot)
	for _, inc := range items {
		if inc.H3Index == "" || inc.Latitude == nil || inc.Longitude == nil {
			continue
		}
		h, ok := cells[inc.H3Index]
		if !ok {
			h = &Hotspot{Cell: inc.H3Index, Latitude: *inc.Latitude, Longitude: *inc.Longitude, LocationLabel: inc.LocationLabel}
			cells[inc.H3Index] = h
		}
		h.Count++
		if inc.Priority == entity.PriorityCritical {
			h.Critical++
		}
	}

	out := make([]Hotspot, 0, len(cells))
	for _, h := range cells {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cell < out[j].Cell
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *analyticsService) Export(ctx context.Context, format ExportFormat, filter AnalyticsFilter, actor entity.Identity) (*Export, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins can export incident data")
	}
	if format == "" {
		format = ExportJSON
	}
	if format != ExportJSON && format != ExportXLSX {
		return nil, apperr.Validation("format", "format must be json or xlsx")
	}
	items, err := s.incidents.ListBetween(ctx, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	stamp := s.now().UTC().Format("20060102-150405")
	rows := exportRows(items)
	if format == ExportXLSX {
		data, err := incidentsWorkbook(rows)
		if err != nil {
			return nil, err
		}
		s.logger.Info("incident export generated", zap.String("format", string(format)), zap.Int("rows", len(rows)))
		return &Export{
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			FileName:    "incidents-" + stamp + ".xlsx",
			Data:        data,
		}, nil
	}

	data, err := incidentsJSON(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("incident export generated", zap.String("format", string(format)), zap.Int("rows", len(rows)))
	return &Export{ContentType: "application/json", FileName: "incidents-" + stamp + ".json", Data: data}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
