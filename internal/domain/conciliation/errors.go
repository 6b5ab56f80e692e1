package conciliation

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/platform/blobstore"
)

var (
	ErrCaseAlreadyExists       = errors.New("a conciliation case already exists for this batch")
	ErrNoDisputableObjections  = errors.New("no disputable objections")
	ErrMinutesAlreadyGenerated = errors.New("minutes already generated")
	ErrObjectionNotInCase      = errors.New("objection does not belong to the case")
)

// errorMappings extend the objection mappings with the case errors.
var errorMappings = []glosa.ErrorMapping{
	{Err: ErrCaseAlreadyExists, Status: http.StatusConflict, Code: "case_already_exists"},
	{Err: ErrMinutesAlreadyGenerated, Status: http.StatusConflict, Code: "minutes_already_generated"},
	{Err: ErrNoDisputableObjections, Status: http.StatusUnprocessableEntity, Code: "no_disputable_objections"},
	{Err: ErrObjectionNotInCase, Status: http.StatusUnprocessableEntity, Code: "objection_not_in_case"},
	{Err: blobstore.ErrNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Err: blobstore.ErrTooLarge, Status: http.StatusRequestEntityTooLarge, Code: "file_too_large"},
	{Err: blobstore.ErrContentType, Status: http.StatusUnsupportedMediaType, Code: "unsupported_content_type"},
	{Err: blobstore.ErrMissingName, Status: http.StatusBadRequest, Code: "validation"},
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", glosa.ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(id fmt.Stringer) error {
	return fmt.Errorf("conciliation case %s: %w", id, glosa.ErrNotFound)
}
