package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"anoa.com/friendline/internal/entity"
	searchDto "anoa.com/friendline/internal/modules/search/dto"
	"anoa.com/friendline/pkg/sanitize"
	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const profilesIndex = "profiles"

// ProfileIndexer is the write side used by the profile module.
type ProfileIndexer interface {
	IndexProfile(profile *entity.Profile) error
}

type SearchService interface {
	ProfileIndexer
	DeleteProfile(id string) error
	SearchProfiles(query string, limit int) ([]searchDto.ProfileHit, error)
}

type meiliSearchService struct {
	client meilisearch.ServiceManager
	log    *zap.Logger
}

func NewMeiliSearchService(client meilisearch.ServiceManager, log *zap.Logger) SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &meiliSearchService{client: client, log: log.Named("search")}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	searchable := []string{"username", "display_name"}
	if _, err := s.client.Index(profilesIndex).UpdateSearchableAttributes(&searchable); err != nil {
		s.log.Warn("failed to update profiles searchable attributes", zap.Error(err))
		return
	}
	s.log.Info("meilisearch indexes initialized")
}

type meiliProfileDoc struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func newProfileDoc(p *entity.Profile) meiliProfileDoc {
	doc := meiliProfileDoc{
		ID:          p.ID.String(),
		Username:    p.Username,
		DisplayName: strings.Join(strings.Fields(sanitize.Text(p.DisplayName)), " "),
	}
	if p.AvatarURL != nil {
		doc.AvatarURL = *p.AvatarURL
	}
	return doc
}

func (s *meiliSearchService) IndexProfile(profile *entity.Profile) error {
	doc := newProfileDoc(profile)
	task, err := s.client.Index(profilesIndex).AddDocuments([]meiliProfileDoc{doc}, strPtr("id"))
	if err != nil {
		return fmt.Errorf("index profile %s: %w", doc.ID, err)
	}
	s.log.Debug("indexed profile", zap.String("id", doc.ID), zap.Int64("task_uid", task.TaskUID))
	return nil
}

func (s *meiliSearchService) DeleteProfile(id string) error {
	_, err := s.client.Index(profilesIndex).DeleteDocument(id)
	return err
}

func (s *meiliSearchService) SearchProfiles(query string, limit int) ([]searchDto.ProfileHit, error) {
	if limit <= 0 {
		limit = 20
	}

	raw, err := s.client.Index(profilesIndex).SearchRaw(query, &meilisearch.SearchRequest{Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}

	var res struct {
		Hits []searchDto.ProfileHit `json:"hits"`
	}
	if raw != nil {
		if err := json.Unmarshal(*raw, &res); err != nil {
			return nil, fmt.Errorf("decode profile hits: %w", err)
		}
	}
	if res.Hits == nil {
		res.Hits = []searchDto.ProfileHit{}
	}
	return res.Hits, nil
}

func strPtr(s string) *string {
	return &s
}
