package alumni

import "errors"

var (
	ErrInvalidImportSource  = errors.New("invalid import source")
	ErrInvalidCollegeID     = errors.New("invalid college id")
	ErrInvalidImportID      = errors.New("invalid import id")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrCollegeNotFound      = errors.New("college not found")
	ErrForbidden            = errors.New("not allowed to manage imports of this college")
	ErrAuthorize            = errors.New("failed to check import permissions")
	ErrStoreUpload          = errors.New("failed to store uploaded file")
	ErrEnqueueImportJob     = errors.New("failed to enqueue import job")
	ErrImportNotFound       = errors.New("import not found")
	ErrGetImport            = errors.New("failed to get import")
	ErrImportInProgress     = errors.New("import is already processing")
	ErrImportNotCancellable = errors.New("import cannot be cancelled")
	ErrRetryImport          = errors.New("failed to retry import")
	ErrCancelImport         = errors.New("failed to cancel import")
	ErrListImportRows       = errors.New("failed to list import rows")
)
