package handlers

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pickup-map-api-server/internal/database"
	"pickup-map-api-server/internal/geo"
	"pickup-map-api-server/internal/geocode"
	"pickup-map-api-server/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakePickupStore struct {
	mu        sync.Mutex
	pickups   map[primitive.ObjectID]*models.Pickup
	createErr error
	listErr   error
	lastLimit int64
	lastBBox  geo.BBox
}

func newFakePickupStore(seed ...models.Pickup) *fakePickupStore {
	s := &fakePickupStore{pickups: map[primitive.ObjectID]*models.Pickup{}}
	for i := range seed {
		p := seed[i]
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		s.pickups[p.ID] = &p
	}
	return s
}

func (s *fakePickupStore) Create(_ context.Context, p *models.Pickup) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = primitive.NewObjectID()
	cp := *p
	s.pickups[p.ID] = &cp
	return nil
}

func (s *fakePickupStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return nil, database.ErrPickupNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakePickupStore) sorted(keep func(models.Pickup) bool, limit int64) []models.Pickup {
	var out []models.Pickup
	for _, p := range s.pickups {
		if keep(*p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

func (s *fakePickupStore) ListByStatus(_ context.Context, status models.PickupStatus, limit int64) ([]models.Pickup, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	return s.sorted(func(p models.Pickup) bool { return p.Status == status }, limit), nil
}

func (s *fakePickupStore) ListApprovedInBBox(_ context.Context, bbox geo.BBox, limit int64) ([]models.Pickup, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	s.lastBBox = bbox
	return s.sorted(func(p models.Pickup) bool {
		return p.Status == models.StatusApproved &&
			bbox.Contains(geo.Point{Latitude: p.Latitude, Longitude: p.Longitude})
	}, limit), nil
}

func (s *fakePickupStore) Review(_ context.Context, id primitive.ObjectID, next models.PickupStatus, reviewer string, at time.Time) (*models.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !models.StatusPending.CanTransitionTo(next) {
		return nil, database.ErrInvalidTransition
	}
	p, ok := s.pickups[id]
	if !ok {
		return nil, database.ErrPickupNotFound
	}
	if p.Status != models.StatusPending {
		return nil, database.ErrInvalidTransition
	}
	p.Status = next
	p.ReviewedAt = &at
	p.ReviewedBy = reviewer
	cp := *p
	return &cp, nil
}

type fakeStorage struct {
	uploaded    map[string][]byte
	contentType map[string]string
	deleted     []string
	uploadErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, contentType: map[string]string{}}
}

func (f *fakeStorage) UploadFile(_ context.Context, file io.Reader, key, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	b, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	f.uploaded[key] = b
	f.contentType[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStorage) DeleteFile(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeGeocoder struct {
	label       string
	err         error
	reverseHits int
	suggestions []geocode.Suggestion
	lastQuery   string
}

func (f *fakeGeocoder) Reverse(_ context.Context, _, _ float64) (string, error) {
	f.reverseHits++
	return f.label, f.err
}

func (f *fakeGeocoder) Search(_ context.Context, q string) ([]geocode.Suggestion, error) {
	f.lastQuery = q
	return f.suggestions, f.err
}

type fakeBroadcaster struct {
	events []models.PickupEvent
}

func (f *fakeBroadcaster) Broadcast(ev models.PickupEvent) {
	f.events = append(f.events, ev)
}

type fakeUserFinder struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUserFinder) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return u, nil
}
