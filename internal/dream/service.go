package dream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/dream/entity"
	dreamrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/dream/repo"
)

// Store is the persistence the service depends on. Every call is scoped by owner.
type Store interface {
	List(ctx context.Context, owner string) ([]*entity.Dream, error)
	Get(ctx context.Context, owner, id string) (*entity.Dream, error)
	Create(ctx context.Context, d *entity.Dream) error
	Update(ctx context.Context, d *entity.Dream) error
	Delete(ctx context.Context, owner, id string) error
}

// IDSource generates dream identifiers.
type IDSource interface {
	NewID() string
}

var (
	ErrDreamNotFound = errors.New("dream not found")
	ErrInvalidInput  = errors.New("invalid input")
)

// Service implements the dream journal operations for an authenticated owner.
type Service struct {
	store Store
	ids   IDSource
	now   func() time.Time
}

func NewService(store Store, ids IDSource) *Service {
	return &Service{store: store, ids: ids, now: time.Now}
}

// Fields is a decoded JSON object body. A key that is absent or null means
// "not provided".
type Fields map[string]json.RawMessage

func (s *Service) List(ctx context.Context, owner string) ([]*entity.Dream, error) {
	list, err := s.store.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*entity.Dream{}
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (*entity.Dream, error) {
	d, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return d, nil
}

// Create validates the body and stores a new dream dated now.
func (s *Service) Create(ctx context.Context, owner string, in Fields) (*entity.Dream, error) {
	d := &entity.Dream{
		User:            owner,
		Blocks:          []json.RawMessage{},
		SimilarArtworks: []entity.Artwork{},
	}
	if err := apply(d, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.DreamText) == "" {
		return nil, fmt.Errorf("%w: dreamText is required", ErrInvalidInput)
	}
	d.ID = s.ids.NewID()
	d.Date = s.now().Unix()
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Update merges the provided fields over the stored dream. Fields that are
// omitted or null keep their stored value.
func (s *Service) Update(ctx context.Context, owner, id string, in Fields) (*entity.Dream, error) {
	d, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if err := apply(d, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.DreamText) == "" {
		return nil, fmt.Errorf("%w: dreamText must be a non-empty string", ErrInvalidInput)
	}
	if err := s.store.Update(ctx, d); err != nil {
		return nil, mapStoreError(err)
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, owner, id string) error {
	return mapStoreError(s.store.Delete(ctx, owner, id))
}

func mapStoreError(err error) error {
	if errors.Is(err, dreamrepo.ErrNotFound) {
		return ErrDreamNotFound
	}
	return err
}

// apply copies every provided field of in onto d, checking its JSON type.
func apply(d *entity.Dream, in Fields) error {
	strs := []struct {
		key string
		dst **string
	}{
		{"title", &d.Title},
		{"category", &d.Category},
		{"dreamSummary", &d.DreamSummary},
		{"globalFinalInterpretation", &d.GlobalFinalInterpretation},
		{"context", &d.Context},
	}
	for _, f := range strs {
		v, ok, err := stringField(in, f.key)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = &v
		}
	}

	if v, ok, err := stringField(in, "dreamText"); err != nil {
		return err
	} else if ok {
		d.DreamText = v
	}

	if raw, ok := provided(in, "date"); ok {
		var date int64
		if err := json.Unmarshal(raw, &date); err != nil {
			return fmt.Errorf("%w: date must be an integer", ErrInvalidInput)
		}
		d.Date = dreamrepo.NormalizeEpoch(date)
	}

	if raw, ok := provided(in, "blocks"); ok {
		var blocks []json.RawMessage
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return fmt.Errorf("%w: blocks must be an array", ErrInvalidInput)
		}
		d.Blocks = blocks
	}

	if raw, ok := provided(in, "similarArtworks"); ok {
		var artworks []entity.Artwork
		if err := json.Unmarshal(raw, &artworks); err != nil {
			return fmt.Errorf("%w: similarArtworks must be an array of artworks", ErrInvalidInput)
		}
		if len(artworks) > entity.MaxArtworks {
			artworks = artworks[:entity.MaxArtworks]
		}
		d.SimilarArtworks = artworks
	}
	return nil
}

func provided(in Fields, key string) (json.RawMessage, bool) {
	raw, ok := in[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func stringField(in Fields, key string) (string, bool, error) {
	raw, ok := provided(in, key)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidInput, key)
	}
	return s, true, nil
}
