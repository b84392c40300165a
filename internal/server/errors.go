package server

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

// toConnectError maps engine and store errors onto connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var verr *bulk.ValidationError
	switch {
	case errors.As(err, &verr):
		return validationError(verr)
	case errors.Is(err, bulk.ErrEmptyBatch),
		errors.Is(err, bulk.ErrUnknownOperationType),
		errors.Is(err, bulk.ErrTemplateNameRequired):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, store.ErrOperationNotFound),
		errors.Is(err, store.ErrTemplateNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrTemplateNameTaken),
		errors.Is(err, store.ErrOperationExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, bulk.ErrSyncUnavailable),
		errors.Is(err, store.ErrOperationFinalized):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, bulk.ErrEngineClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// validationError carries every row error, one per metadata value, so clients can
// render the full list without parsing the message.
func validationError(verr *bulk.ValidationError) error {
	cerr := connect.NewError(connect.CodeInvalidArgument, verr)
	for _, rowErr := range verr.Errors {
		cerr.Meta().Add(bulkv1.RowErrorHeader, rowErr.Error())
	}
	return cerr
}

func parseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}
