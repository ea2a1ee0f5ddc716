package catalog

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrPackageNotFound = errors.New("credit package not found")
	ErrNoAsset         = errors.New("product has no downloadable asset")
	ErrStorageDisabled = errors.New("object storage is not configured")
	ErrInternal        = errors.New("internal error")
)
