package storage

import (
	"github.com/barberos/barberos/internal/outbox"
	"github.com/barberos/barberos/libs/db"
)

// Repository bundles the per-table repositories behind one handle. The
// composite satisfies booking.Store; handlers that need the richer listing
// and catalog queries use the embedded repositories directly.
type Repository struct {
	*AppointmentRepository
	*CatalogRepository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{
		AppointmentRepository: NewAppointmentRepository(pool, outboxRepo),
		CatalogRepository:     NewCatalogRepository(pool),
	}
}
