package service

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lorekeep/lorekeep/internal/document"
	"github.com/lorekeep/lorekeep/internal/document/repository"
)

var (
	ErrNotFound = errors.New("not found")
)

// Repo is the storage interface the service runs on. Both the memory and
// the Mongo repositories satisfy it.
type Repo interface {
	Create(d *document.Document) (string, error)
	Get(tenantID, id string) (*document.Document, error)
	List(tenantID string) ([]*document.Document, error)
	Update(tenantID, id string, u document.Update) error
	Delete(tenantID, id string) error
}

// Service defines the document business operations used by the handler layer.
type Service interface {
	Create(d *document.Document) (string, error)
	Get(tenantID, id string) (*document.Document, error)
	List(tenantID string) ([]*document.Document, error)
	Update(tenantID, id string, u document.Update) error
	Delete(tenantID, id string) error
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	return &docService{repo: repository.NewMemoryRepo()}
}

// NewMongoService returns a Service backed by a MongoDB collection.
// The caller owns the collection and the client lifecycle.
func NewMongoService(col *mongo.Collection) Service {
	return &docService{repo: repository.NewMongoRepo(col)}
}

type docService struct {
	repo Repo
}

func (s *docService) Create(d *document.Document) (string, error) {
	return s.repo.Create(d)
}

func (s *docService) Get(tenantID, id string) (*document.Document, error) {
	d, err := s.repo.Get(tenantID, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *docService) List(tenantID string) ([]*document.Document, error) {
	return s.repo.List(tenantID)
}

func (s *docService) Update(tenantID, id string, u document.Update) error {
	if err := s.repo.Update(tenantID, id, u); err != nil {
		return ErrNotFound
	}
	return nil
}

func (s *docService) Delete(tenantID, id string) error {
	if err := s.repo.Delete(tenantID, id); err != nil {
		return ErrNotFound
	}
	return nil
}
