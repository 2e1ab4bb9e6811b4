package nurse

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/geo"
)

// -- Mock Repository --

type mockRepo struct {
	nurses map[uuid.UUID]*Nurse
}

func newMockRepo() *mockRepo {
	return &mockRepo{nurses: make(map[uuid.UUID]*Nurse)}
}

func (m *mockRepo) Create(_ context.Context, n *Nurse) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()
	n.UpdatedAt = time.Now()
	m.nurses[n.ID] = n
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Nurse, error) {
	n, ok := m.nurses[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return n, nil
}

func (m *mockRepo) Update(_ context.Context, n *Nurse) error {
	m.nurses[n.ID] = n
	return nil
}

func (m *mockRepo) SetAvailability(_ context.Context, id uuid.UUID, available bool) error {
	n, ok := m.nurses[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	n.Available = available
	return nil
}

func (m *mockRepo) UpdateLocation(_ context.Context, id uuid.UUID, p geo.Point) error {
	n, ok := m.nurses[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	n.Latitude = &p.Latitude
	n.Longitude = &p.Longitude
	return nil
}

func (m *mockRepo) ApplyRating(_ context.Context, id uuid.UUID, rating int) error {
	n, ok := m.nurses[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	n.RatingAvg = (n.RatingAvg*float64(n.RatingCount) + float64(rating)) / float64(n.RatingCount+1)
	n.RatingCount++
	return nil
}

func (m *mockRepo) FindNearby(_ context.Context, origin geo.Point, radiusKm float64, f SearchFilters, limit int) ([]*NearbyNurse, error) {
	var result []*NearbyNurse
	for _, n := range m.nurses {
		if !n.Available || n.Latitude == nil || n.Longitude == nil {
			continue
		}
		if f.Category != "" && !contains(n.Categories, f.Category) {
			continue
		}
		if f.MaxPrice != nil && n.HourlyPrice > *f.MaxPrice {
			continue
		}
		if f.MinRating != nil && n.RatingAvg < *f.MinRating {
			continue
		}
		d := geo.DistanceKm(origin, geo.Point{Latitude: *n.Latitude, Longitude: *n.Longitude})
		if d > radiusKm {
			continue
		}
		result = append(result, &NearbyNurse{Nurse: *n, DistanceKm: d})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DistanceKm < result[j].DistanceKm })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Nurse, int, error) {
	var result []*Nurse
	for _, n := range m.nurses {
		result = append(result, n)
	}
	return result, len(result), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

func addNurse(t *testing.T, svc *Service, name string, lat, lng float64, opts func(*Nurse)) *Nurse {
	t.Helper()
	n := &Nurse{
		DisplayName: name,
		Categories:  []string{"eldercare"},
		HourlyPrice: 45,
		Available:   true,
		Latitude:    &lat,
		Longitude:   &lng,
	}
	if opts != nil {
		opts(n)
	}
	if err := svc.Create(context.Background(), n); err != nil {
		t.Fatalf("create nurse: %v", err)
	}
	return n
}

// -- Tests --

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.Create(context.Background(), &Nurse{Categories: []string{"eldercare"}})
	if !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for missing name, got %v", err)
	}

	err = svc.Create(context.Background(), &Nurse{DisplayName: "Rosa", Categories: []string{"eldercare"}, HourlyPrice: -1})
	if !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for negative price, got %v", err)
	}

	err = svc.Create(context.Background(), &Nurse{DisplayName: "Rosa"})
	if !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for empty categories, got %v", err)
	}
}

func TestApplyRating_RunningAverage(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	n := addNurse(t, svc, "Rosa", -12.05, -77.04, nil)

	for _, r := range []int{5, 4, 3} {
		if err := svc.ApplyRating(context.Background(), n.ID, r); err != nil {
			t.Fatalf("apply rating: %v", err)
		}
	}

	got, _ := svc.Get(context.Background(), n.ID)
	if got.RatingCount != 3 {
		t.Errorf("expected rating_count 3, got %d", got.RatingCount)
	}
	if got.RatingAvg != 4 {
		t.Errorf("expected rating_avg 4, got %f", got.RatingAvg)
	}
}

func TestApplyRating_RejectsOutOfRange(t *testing.T) {
	svc := NewService(newMockRepo())
	for _, r := range []int{0, 6, -1} {
		if err := svc.ApplyRating(context.Background(), uuid.New(), r); !apperror.IsKind(err, apperror.KindInvalid) {
			t.Errorf("rating %d: expected invalid error, got %v", r, err)
		}
	}
}

func TestFindNearby_OrdersByDistance(t *testing.T) {
	svc := NewService(newMockRepo())
	origin := geo.Point{Latitude: -12.0464, Longitude: -77.0428}

	far := addNurse(t, svc, "Far", -12.09, -77.01, nil)
	near := addNurse(t, svc, "Near", -12.05, -77.045, nil)

	items, err := svc.FindNearby(context.Background(), origin, 10, SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 results, got %d", len(items))
	}
	if items[0].ID != near.ID || items[1].ID != far.ID {
		t.Error("expected results ordered nearest first")
	}
}

func TestFindNearby_ExcludesUnavailableAndOutOfRadius(t *testing.T) {
	svc := NewService(newMockRepo())
	origin := geo.Point{Latitude: -12.0464, Longitude: -77.0428}

	addNurse(t, svc, "Offline", -12.05, -77.04, func(n *Nurse) { n.Available = false })
	addNurse(t, svc, "TooFar", -13.5, -72.0, nil) // Cusco, way outside
	in := addNurse(t, svc, "InRange", -12.05, -77.045, nil)

	items, err := svc.FindNearby(context.Background(), origin, 5, SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(items) != 1 || items[0].ID != in.ID {
		t.Errorf("expected only the in-range available nurse, got %d results", len(items))
	}
}

func TestFindNearby_AppliesFilters(t *testing.T) {
	svc := NewService(newMockRepo())
	origin := geo.Point{Latitude: -12.0464, Longitude: -77.0428}

	addNurse(t, svc, "Pricey", -12.05, -77.04, func(n *Nurse) { n.HourlyPrice = 120 })
	addNurse(t, svc, "WrongCategory", -12.05, -77.04, func(n *Nurse) { n.Categories = []string{"pediatric"} })
	addNurse(t, svc, "LowRated", -12.05, -77.04, func(n *Nurse) { n.RatingAvg = 2.5; n.RatingCount = 4 })
	match := addNurse(t, svc, "Match", -12.05, -77.04, func(n *Nurse) { n.RatingAvg = 4.8; n.RatingCount = 12 })

	items, err := svc.FindNearby(context.Background(), origin, 5, SearchFilters{
		Category:  "eldercare",
		MaxPrice:  ptr(60.0),
		MinRating: ptr(4.0),
	}, 10)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(items) != 1 || items[0].ID != match.ID {
		t.Errorf("expected only the matching nurse, got %d results", len(items))
	}
}

func TestFindNearby_RejectsBadInput(t *testing.T) {
	svc := NewService(newMockRepo())

	_, err := svc.FindNearby(context.Background(), geo.Point{Latitude: 99, Longitude: 0}, 5, SearchFilters{}, 10)
	if !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for bad coordinates, got %v", err)
	}

	_, err = svc.FindNearby(context.Background(), geo.Point{Latitude: -12, Longitude: -77}, 0, SearchFilters{}, 10)
	if !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for zero radius, got %v", err)
	}
}

func TestUpdateLocation_RejectsInvalidPoint(t *testing.T) {
	svc := NewService(newMockRepo())
	err := svc.UpdateLocation(context.Background(), uuid.New(), geo.Point{Latitude: -95, Longitude: 0})
	if !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}
