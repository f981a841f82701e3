package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const addressTable = "addresses"

var addressStruct = database.NewStruct(new(models.Address))

// AddressRepository reads client pickup addresses. Clover never writes
// addresses; another service owns them.
type AddressRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

type AddressRepo struct {
	db     database.DB
	logger ectologger.Logger
}

// NewAddressRepo creates a new address repository
func NewAddressRepo(db database.DB, logger ectologger.Logger) *AddressRepo {
	return &AddressRepo{
		db:     db,
		logger: logger,
	}
}

func (r *AddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	ctx, span := tracing.StartSpan(ctx, "AddressRepo.GetByID")
	defer span.End()

	sb := addressStruct.SelectFrom(addressTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var row models.Address
	err := r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "address not found")
		}

		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"address_id": id,
		}).Error("error getting address")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error getting address")
	}

	return &row, nil
}
